package engine

import (
	"math"

	"github.com/Dicklesworthstone/omnimon/internal/model"
)

// aggregate is one collapsed window.
type aggregate struct {
	cpu     float64
	memory  float64 // percent 0-100
	rxSpeed float64
	txSpeed float64
	cores   []uint8
}

// collapse reduces a non-empty window to display-rate values. The per-core
// vector takes the shape of the first sample; samples with a different core
// count only contribute to the cores they share.
func collapse(samples []model.Sample) aggregate {
	n := float64(len(samples))
	var agg aggregate
	var cpuSum, usedSum, rxSum, txSum float64

	coreCount := len(samples[0].CPU.PerCore)
	coreSums := make([]float64, coreCount)
	coreHits := make([]int, coreCount)

	for _, s := range samples {
		cpuSum += s.CPU.Total
		usedSum += float64(s.Memory.Used)
		rxSum += s.Network.RxSpeed
		txSum += s.Network.TxSpeed
		for i, v := range s.CPU.PerCore {
			if i >= coreCount {
				break
			}
			coreSums[i] += v
			coreHits[i]++
		}
	}

	agg.cpu = finite(cpuSum / n)
	agg.memory = memoryPercent(usedSum/n, samples[0].Memory.Total)
	agg.rxSpeed = finite(rxSum / n)
	agg.txSpeed = finite(txSum / n)

	agg.cores = make([]uint8, coreCount)
	for i := range coreSums {
		if coreHits[i] > 0 {
			agg.cores[i] = quantize(coreSums[i] / float64(coreHits[i]))
		}
	}
	return agg
}

// memoryPercent is meanUsed/total as 0-100, and 0 when total is zero.
func memoryPercent(meanUsed float64, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return finite(meanUsed / float64(total) * 100)
}

// quantize rounds a load percentage into the 0-100 byte range.
func quantize(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return uint8(math.Round(v))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
