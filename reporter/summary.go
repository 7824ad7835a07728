package reporter

import (
	"fmt"
	"io"

	"github.com/defistate/lp-tracker-go/position"
)

// Summary writes the one human-readable line operators watch for: the run's
// period, total and rewards value, and where the outputs went. It is not a
// machine interface.
func Summary(w io.Writer, obs position.Observation, historyPath, imagePath string) {
	fmt.Fprintf(w, "[%s] Total=$%.2f  Rewards=$%.2f  -> %s, %s\n",
		obs.Key, obs.TotalUSD, obs.RewardsUSD, historyPath, imagePath)
}
