package report

import (
	"fmt"
	"io"
	"time"

	"xstation/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	journalSheet = "Автозавершения"
	summarySheet = "Итоги"
)

var journalHeaders = []string{"№", "Бронь", "Окончание", "Попытка", "Результат", "Ошибка"}

var outcomeLabels = map[string]string{
	models.OutcomeEnded:        "✅ завершена",
	models.OutcomeFailed:       "❌ ошибка",
	models.OutcomeInconsistent: "❗ нет времени окончания",
}

// WriteJournal renders auto-end journal entries as an XLSX workbook with a
// detail sheet and a per-outcome summary, and writes it to w.
func WriteJournal(w io.Writer, entries []models.JournalEntry, from, to time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(journalSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(journalSheet, "A1", fmt.Sprintf("Период: %s - %s",
		from.In(loc).Format("02.01.2006 15:04"), to.In(loc).Format("02.01.2006 15:04")))
	_ = f.MergeCell(journalSheet, "A1", "F1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(journalSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, title := range journalHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(journalSheet, cell, title)
		_ = f.SetCellStyle(journalSheet, cell, cell, headerStyle)
	}

	failedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
	})

	counts := make(map[string]int)
	for i, e := range entries {
		row := i + 3
		values := []interface{}{
			e.ID,
			e.BookingID,
			formatTime(e.EndTime, loc),
			formatTime(e.AttemptedAt, loc),
			outcomeLabel(e.Outcome),
			e.Error,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(journalSheet, cell, v)
		}
		if e.Outcome != models.OutcomeEnded {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(journalSheet, first, last, failedStyle)
		}
		counts[e.Outcome]++
	}

	_ = f.SetColWidth(journalSheet, "A", "B", 10)
	_ = f.SetColWidth(journalSheet, "C", "E", 22)
	_ = f.SetColWidth(journalSheet, "F", "F", 40)

	if err := writeSummary(f, counts, len(entries)); err != nil {
		return err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, counts map[string]int, total int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	rows := [][]interface{}{
		{"Результат", "Количество"},
		{outcomeLabel(models.OutcomeEnded), counts[models.OutcomeEnded]},
		{outcomeLabel(models.OutcomeFailed), counts[models.OutcomeFailed]},
		{outcomeLabel(models.OutcomeInconsistent), counts[models.OutcomeInconsistent]},
		{"Всего", total},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("error writing summary: %w", err)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	return nil
}

func outcomeLabel(outcome string) string {
	if label, ok := outcomeLabels[outcome]; ok {
		return label
	}
	return outcome
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "—"
	}
	return t.In(loc).Format("02.01.2006 15:04:05")
}
