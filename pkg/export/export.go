package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/loom/core/model"
)

// FinancialRow is the per-instance line of the billing export.
type FinancialRow struct {
	InstanceID string  `json:"instance_id"`
	ProgramID  string  `json:"program_id"`
	Date       string  `json:"date"`
	Status     string  `json:"status"`
	Attending  int     `json:"attending"`
	Staff      int     `json:"staff"`
	Required   int     `json:"required_staff"`
	Revenue    float64 `json:"revenue"`
	StaffCost  float64 `json:"staff_cost"`
	AdminCost  float64 `json:"admin_cost"`
	ProfitLoss float64 `json:"profit_loss"`
	Margin     float64 `json:"margin"`
	Shortfalls int     `json:"shortfalls"`
}

// ShiftRow is one staff shift of the payroll export.
type ShiftRow struct {
	InstanceID string  `json:"instance_id"`
	Date       string  `json:"date"`
	StaffID    string  `json:"staff_id"`
	Role       string  `json:"role"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Hours      float64 `json:"hours"`
	PayRate    float64 `json:"pay_rate"`
	Cost       float64 `json:"cost"`
}

// Financials flattens instances into billing rows.
func Financials(list []model.Instance) []FinancialRow {
	rows := make([]FinancialRow, 0, len(list))
	for _, inst := range list {
		f := inst.Financials
		rows = append(rows, FinancialRow{
			InstanceID: inst.ID,
			ProgramID:  inst.ProgramID,
			Date:       model.FormatDate(inst.Date),
			Status:     string(inst.Status),
			Attending:  len(inst.Attending()),
			Staff:      len(inst.Shifts),
			Required:   inst.RequiredStaff,
			Revenue:    f.Revenue,
			StaffCost:  f.StaffCost,
			AdminCost:  f.AdminCost,
			ProfitLoss: f.ProfitLoss,
			Margin:     f.Margin,
			Shortfalls: len(inst.Shortfalls),
		})
	}
	return rows
}

// Shifts flattens the staff shifts of every instance into payroll rows.
func Shifts(list []model.Instance) []ShiftRow {
	var rows []ShiftRow
	for _, inst := range list {
		for _, s := range inst.Shifts {
			h := s.Hours()
			rows = append(rows, ShiftRow{
				InstanceID: inst.ID,
				Date:       model.FormatDate(inst.Date),
				StaffID:    s.StaffID,
				Role:       string(s.Role),
				Start:      string(s.Start),
				End:        string(s.End),
				Hours:      h,
				PayRate:    s.PayRate,
				Cost:       h * s.PayRate,
			})
		}
	}
	return rows
}

// WriteJSON writes rows to w in JSON format.
func WriteJSON(w io.Writer, rows any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(rows)
}

// WriteFinancialsCSV writes the billing rows to w in CSV format.
func WriteFinancialsCSV(w io.Writer, rows []FinancialRow) error {
	header := []string{"instance_id", "program_id", "date", "status", "attending", "staff", "required_staff",
		"revenue", "staff_cost", "admin_cost", "profit_loss", "margin", "shortfalls"}
	return writeCSV(w, header, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.InstanceID, r.ProgramID, r.Date, r.Status,
			strconv.Itoa(r.Attending), strconv.Itoa(r.Staff), strconv.Itoa(r.Required),
			money(r.Revenue), money(r.StaffCost), money(r.AdminCost), money(r.ProfitLoss),
			strconv.FormatFloat(r.Margin, 'f', 4, 64),
			strconv.Itoa(r.Shortfalls),
		}
	})
}

// WriteShiftsCSV writes the payroll rows to w in CSV format.
func WriteShiftsCSV(w io.Writer, rows []ShiftRow) error {
	header := []string{"instance_id", "date", "staff_id", "role", "start", "end", "hours", "pay_rate", "cost"}
	return writeCSV(w, header, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.InstanceID, r.Date, r.StaffID, r.Role, r.Start, r.End,
			strconv.FormatFloat(r.Hours, 'f', -1, 64),
			money(r.PayRate), money(r.Cost),
		}
	})
}

func writeCSV(w io.Writer, header []string, n int, rec func(int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(rec(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
