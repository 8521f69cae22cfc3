// Command screener ingests daily prices, computes signals and runs the
// momentum backtest.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
