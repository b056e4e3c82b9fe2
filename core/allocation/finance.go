package allocation

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/loom/core/model"
)

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// CalculateFinancialMetrics computes revenue from billing rates and hours of
// attending participants, staff cost from shift hours and pay rates, and the
// admin overhead. Margin is zero when there is no revenue.
func CalculateFinancialMetrics(inst model.Instance, rates map[string]float64, cfg model.AllocationConfig) model.Financials {
	defaultHours := model.Span(inst.StartTime, inst.EndTime).Hours()

	attending := inst.Attending()
	billRates := make([]float64, len(attending))
	billHours := make([]float64, len(attending))
	for i, p := range attending {
		billRates[i] = rates[p.BillingCode]
		billHours[i] = p.Hours
		if billHours[i] <= 0 {
			billHours[i] = defaultHours
		}
	}
	payRates := make([]float64, len(inst.Shifts))
	shiftHours := make([]float64, len(inst.Shifts))
	for i, s := range inst.Shifts {
		payRates[i] = s.PayRate
		shiftHours[i] = s.Hours()
	}

	var f model.Financials
	if len(attending) > 0 {
		f.Revenue = round(floats.Dot(billRates, billHours), 2)
	}
	if len(inst.Shifts) > 0 {
		f.StaffCost = round(floats.Dot(payRates, shiftHours), 2)
	}
	f.AdminCost = round(f.Revenue*cfg.AdminOverhead, 2)
	f.ProfitLoss = round(f.Revenue-f.StaffCost-f.AdminCost, 2)
	if f.Revenue > 0 {
		f.Margin = round(f.ProfitLoss/f.Revenue, 4)
	}
	return f
}
