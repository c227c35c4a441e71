package montecarlo

import "github.com/minghan/leversim/pkg/formulas"

// Distribution summarizes final net equity across paths at key percentiles.
type Distribution struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// Analysis aggregates a batch of path results.
type Analysis struct {
	NumSimulations    int          `json:"num_simulations"`
	MeanNetEquity     float64      `json:"mean_net_equity"`
	StdDevNetEquity   float64      `json:"std_dev_net_equity"`
	Distribution      Distribution `json:"distribution"`
	TotalContribution float64      `json:"total_contribution"`
	ProbabilityOfLoss float64      `json:"probability_of_loss"` // fractional
	LiquidationRate   float64      `json:"liquidation_rate"`    // fractional
	MeanROI           float64      `json:"mean_roi"`            // fractional
}

// Analyze computes summary statistics over path results.
func Analyze(results []PathResult) Analysis {
	if len(results) == 0 {
		return Analysis{}
	}

	equities := make([]float64, len(results))
	rois := make([]float64, len(results))
	losses := 0
	liquidations := 0
	for i, r := range results {
		equities[i] = r.FinalNetEquity
		rois[i] = r.ROI
		if r.NetProfit < 0 {
			losses++
		}
		if r.EverLiquidated {
			liquidations++
		}
	}

	n := float64(len(results))
	return Analysis{
		NumSimulations:  len(results),
		MeanNetEquity:   formulas.Mean(equities),
		StdDevNetEquity: formulas.StdDev(equities),
		Distribution: Distribution{
			P5:  formulas.Percentile(equities, 5),
			P25: formulas.Percentile(equities, 25),
			P50: formulas.Percentile(equities, 50),
			P75: formulas.Percentile(equities, 75),
			P95: formulas.Percentile(equities, 95),
		},
		TotalContribution: results[0].TotalContribution,
		ProbabilityOfLoss: float64(losses) / n,
		LiquidationRate:   float64(liquidations) / n,
		MeanROI:           formulas.Mean(rois),
	}
}
