package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"flariki/internal/models"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	dateLayout = "02.01.2006 15:04"
)

// table описывает один лист: заголовки и строки.
type table struct {
	sheet   string
	title   string
	headers []string
	widths  []float64
	rows    [][]interface{}
}

// Reports пишет выгрузку отчетов в w.
func Reports(w io.Writer, reports []*models.Report, generatedAt time.Time) error {
	t := table{
		sheet: "Отчеты",
		title: "Отчеты на " + generatedAt.Format(dateLayout),
		headers: []string{
			"ID", "Дата", "Амбассадор", "Telegram ID", "Задание", "Тип", "Статус",
			"Ссылки", "Просмотры", "Лайки", "Комментарии", "Охват", "Причина отказа",
		},
		widths: []float64{38, 18, 25, 14, 30, 18, 12, 45, 12, 10, 12, 10, 30},
	}

	for _, r := range reports {
		var userName, taskTitle string
		var telegramID int64
		if r.User != nil {
			userName = r.User.DisplayName()
			telegramID = r.User.TelegramID
		}
		if r.Task != nil {
			taskTitle = r.Task.Title
		}

		var links string
		var views, likes, comments, reach int64
		for _, v := range r.VideoLinks {
			links += v.URL + "\n"
			views += deref(v.Views)
			likes += deref(v.Likes)
			comments += deref(v.Comments)
		}
		for _, s := range r.Stories {
			links += s.StoryURL + "\n"
			reach += s.Reach
		}
		if links != "" {
			links = links[:len(links)-1]
		}

		t.rows = append(t.rows, []interface{}{
			r.ID,
			r.SubmittedAt.Format(dateLayout),
			userName,
			telegramID,
			taskTitle,
			reportTypeLabel(r.Type),
			string(r.Status),
			links,
			views,
			likes,
			comments,
			reach,
			models.Deref(r.RejectionReason),
		})
	}

	return write(w, t)
}

// Purchases пишет выгрузку заказов магазина.
func Purchases(w io.Writer, purchases []*models.Purchase, generatedAt time.Time) error {
	t := table{
		sheet: "Заказы",
		title: "Заказы на " + generatedAt.Format(dateLayout),
		headers: []string{
			"ID", "Дата", "Амбассадор", "Телефон", "ПВЗ СДЭК", "Адрес", "Товар",
			"Кол-во", "Сумма", "Статус", "Комментарий",
		},
		widths: []float64{38, 18, 25, 16, 16, 35, 25, 8, 10, 12, 30},
	}

	for _, p := range purchases {
		var userName, phone, cdek, address, item string
		if p.User != nil {
			userName = p.User.DisplayName()
			phone = models.Deref(p.User.Phone)
			cdek = models.Deref(p.User.CdekPvz)
			address = models.Deref(p.User.Address)
		}
		if p.ShopItem != nil {
			item = p.ShopItem.Name
		}
		t.rows = append(t.rows, []interface{}{
			p.ID,
			p.CreatedAt.Format(dateLayout),
			userName,
			phone,
			cdek,
			address,
			item,
			p.Quantity,
			p.TotalPrice,
			string(p.Status),
			models.Deref(p.Notes),
		})
	}

	return write(w, t)
}

// Leaderboard пишет рейтинг амбассадоров.
func Leaderboard(w io.Writer, board *models.Leaderboard, generatedAt time.Time) error {
	title := "Рейтинг на " + generatedAt.Format(dateLayout)
	if board.Period.StartDate != nil || board.Period.EndDate != nil {
		title = fmt.Sprintf("Рейтинг за период %s - %s", formatDay(board.Period.StartDate), formatDay(board.Period.EndDate))
	}

	t := table{
		sheet: "Рейтинг",
		title: title,
		headers: []string{
			"Место", "Амбассадор", "Username", "Отчеты", "Видео", "Сторис",
			"Просмотры", "Лайки", "Комментарии", "Охват", "Рейтинг", "Баланс",
		},
		widths: []float64{8, 25, 18, 10, 10, 10, 12, 10, 12, 10, 12, 10},
	}

	for i, e := range board.Leaderboard {
		username := ""
		if e.Username != nil {
			username = "@" + *e.Username
		}
		t.rows = append(t.rows, []interface{}{
			i + 1,
			e.UserName,
			username,
			e.ReportsCount,
			e.Videos,
			e.Stories,
			e.Views,
			e.Likes,
			e.Comments,
			e.StoryReach,
			e.Rating,
			e.FlarikiBalance,
		})
	}

	return write(w, t)
}

func write(w io.Writer, t table) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(t.sheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// Строка 1: заголовок выгрузки. Строка 2: названия колонок
	_ = f.SetCellValue(t.sheet, "A1", t.title)
	lastCol, _ := excelize.ColumnNumberToName(len(t.headers))
	_ = f.MergeCell(t.sheet, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(t.sheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, h := range t.headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(t.sheet, cell, h)
		_ = f.SetCellStyle(t.sheet, cell, cell, headerStyle)

		if i < len(t.widths) {
			col, _ := excelize.ColumnNumberToName(i + 1)
			_ = f.SetColWidth(t.sheet, col, col, t.widths[i])
		}
	}

	for r, row := range t.rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+3)
		if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", r+3, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func reportTypeLabel(t models.ReportType) string {
	switch t {
	case models.ReportVideoLink:
		return "Видео"
	case models.ReportStoryScreenshot:
		return "Сторис"
	}
	return string(t)
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "..."
	}
	return t.Format("02.01.2006")
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
