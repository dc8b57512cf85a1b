package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"flariki/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	ReportsSheet   = "Reports"
	PurchasesSheet = "Purchases"

	reportsLastCol   = "P"
	purchasesLastCol = "K"

	sheetTimeLayout = "2006-01-02 15:04:05"
)

var errRowNotFound = errors.New("sheet row not found")

// SheetsService зеркалит отчеты и покупки в Google таблицу для менеджеров.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache: map[string]map[string]int{
			ReportsSheet:   {},
			PurchasesSheet: {},
		},
	}
}

// TestConnection проверяет доступ к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, ReportsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache перечитывает колонку A обоих листов.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	for _, sheet := range []string{ReportsSheet, PurchasesSheet} {
		resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to read %s ids: %w", sheet, err)
		}

		rows := make(map[string]int, len(resp.Values))
		for i, row := range resp.Values {
			if id := cellString(row); id != "" {
				rows[id] = i + 1
			}
		}

		s.cacheMu.Lock()
		s.rowCache[sheet] = rows
		s.cacheMu.Unlock()
	}
	return nil
}

func (s *SheetsService) UpsertReport(ctx context.Context, report *models.Report) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	return s.upsertRow(ctx, ReportsSheet, reportsLastCol, report.ID, reportRowValues(report))
}

func (s *SheetsService) UpsertPurchase(ctx context.Context, purchase *models.Purchase) error {
	if purchase == nil {
		return fmt.Errorf("purchase is nil")
	}
	return s.upsertRow(ctx, PurchasesSheet, purchasesLastCol, purchase.ID, purchaseRowValues(purchase))
}

func (s *SheetsService) upsertRow(ctx context.Context, sheet, lastCol, id string, row []interface{}) error {
	rowIdx, err := s.findRow(ctx, sheet, id)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, sheet, id, row)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", sheet, rowIdx, lastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s row %d: %w", sheet, rowIdx, err)
	}
	return nil
}

func (s *SheetsService) appendRow(ctx context.Context, sheet, id string, row []interface{}) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, sheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append %s row: %w", sheet, err)
	}

	if resp.Updates != nil {
		if rowIdx, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(sheet, id, rowIdx)
		}
	}
	return nil
}

// findRow ищет строку (1-based) по id в колонке A, сначала в кеше.
func (s *SheetsService) findRow(ctx context.Context, sheet, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("row id is required")
	}
	if row, ok := s.getCachedRow(sheet, id); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s ids: %w", sheet, err)
	}

	for i, row := range resp.Values {
		if cellString(row) == id {
			s.setCachedRow(sheet, id, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsService) getCachedRow(sheet, id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[sheet][id]
	return row, ok
}

func (s *SheetsService) setCachedRow(sheet, id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.rowCache[sheet] == nil {
		s.rowCache[sheet] = make(map[string]int)
	}
	s.rowCache[sheet][id] = row
}

// ClearCache сбрасывает индекс строк.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = map[string]map[string]int{
		ReportsSheet:   {},
		PurchasesSheet: {},
	}
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// rowFromRange: "Reports!A12:P12" -> 12.
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ$")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}

func reportRowValues(r *models.Report) []interface{} {
	var userName, username, phone, taskTitle string
	var telegramID int64
	if r.User != nil {
		userName = r.User.DisplayName()
		username = models.Deref(r.User.Username)
		phone = models.Deref(r.User.Phone)
		telegramID = r.User.TelegramID
	}
	if r.Task != nil {
		taskTitle = r.Task.Title
	}

	var links []string
	var views, likes, comments, reach int64
	for _, v := range r.VideoLinks {
		links = append(links, v.URL)
		views += deref64(v.Views)
		likes += deref64(v.Likes)
		comments += deref64(v.Comments)
	}
	for _, st := range r.Stories {
		links = append(links, st.StoryURL)
		reach += st.Reach
	}

	return []interface{}{
		r.ID,
		r.SubmittedAt.Format(sheetTimeLayout),
		userName,
		username,
		telegramID,
		phone,
		taskTitle,
		string(r.Type),
		string(r.Status),
		strings.Join(links, "\n"),
		views,
		likes,
		comments,
		reach,
		models.Deref(r.RejectionReason),
		formatTimePtr(r.ReviewedAt),
	}
}

func purchaseRowValues(p *models.Purchase) []interface{} {
	var userName, phone, delivery, itemName string
	var telegramID int64
	if p.User != nil {
		userName = p.User.DisplayName()
		phone = models.Deref(p.User.Phone)
		telegramID = p.User.TelegramID
		delivery = models.Deref(p.User.CdekPvz)
		if delivery == "" {
			delivery = models.Deref(p.User.Address)
		}
	}
	if p.ShopItem != nil {
		itemName = p.ShopItem.Name
	}

	return []interface{}{
		p.ID,
		p.CreatedAt.Format(sheetTimeLayout),
		userName,
		telegramID,
		phone,
		delivery,
		itemName,
		p.Quantity,
		p.TotalPrice,
		string(p.Status),
		p.UpdatedAt.Format(sheetTimeLayout),
	}
}

func deref64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(sheetTimeLayout)
}
