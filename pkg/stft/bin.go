// Package stft holds the short-term fuel trim grid: the bin indexer that maps
// an operating point to a cell and the per-bank correction table.
package stft

import (
	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// ComputeBin returns the flattened RPM x load cell for the operating point.
// Points outside the calibrated range land in the nearest edge bin. A NaN
// input is treated as below the first edge.
func ComputeBin(rpm, load float64, cfg *models.StftConfig) (int, error) {
	if err := cfg.ValidateBins(); err != nil {
		return 0, err
	}

	rpmBin := findBin(rpm, cfg.RpmBins)
	loadBin := findBin(load, cfg.LoadBins)

	return rpmBin*cfg.NumLoadBins() + loadBin, nil
}

// BinCoords splits a flattened bin back into its RPM and load bins
func BinCoords(bin int, cfg *models.StftConfig) (rpmBin, loadBin int) {
	n := cfg.NumLoadBins()
	if n == 0 {
		return 0, 0
	}
	return bin / n, bin % n
}

// findBin returns the index of the last edge <= v, clamped to [0, len-1].
// Binary search, no allocation.
func findBin(v float64, edges []float64) int {
	if !(v >= edges[0]) {
		return 0
	}
	lo, hi := 0, len(edges)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if edges[mid] <= v {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
