package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"flariki/internal/domain"
	"flariki/internal/models"
)

// allowedImages maps sniffed content types to stored extensions.
var allowedImages = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type videoLinkRequest struct {
	URL      string  `json:"url"`
	Platform *string `json:"platform"`
	Views    *int64  `json:"views"`
	Likes    *int64  `json:"likes"`
	Comments *int64  `json:"comments"`
}

type storyRequest struct {
	StoryURL       string  `json:"storyUrl"`
	ScreenshotFile *string `json:"screenshotFile"`
	ScreenshotURL  *string `json:"screenshotUrl"`
	Reach          int64   `json:"reach"`
}

type createReportRequest struct {
	TaskID     string             `json:"taskId"`
	Type       models.ReportType  `json:"type" binding:"required"`
	Notes      *string            `json:"notes"`
	VideoLinks []videoLinkRequest `json:"videoLinks"`
	Stories    []storyRequest     `json:"stories"`
	ProductIDs []string           `json:"productIds"`

	// старый формат клиента: одна сторис полями верхнего уровня
	StoryURL       *string `json:"storyUrl"`
	StoryReach     *int64  `json:"storyReach"`
	ScreenshotURL  *string `json:"screenshotUrl"`
	ScreenshotFile *string `json:"screenshotFile"`
}

func (r createReportRequest) toNewReport() models.NewReport {
	in := models.NewReport{
		TaskID:     strings.TrimSpace(r.TaskID),
		Type:       models.ReportType(strings.ToUpper(string(r.Type))),
		Notes:      r.Notes,
		ProductIDs: r.ProductIDs,
	}
	for _, v := range r.VideoLinks {
		in.VideoLinks = append(in.VideoLinks, models.VideoLink{
			URL:      strings.TrimSpace(v.URL),
			Platform: v.Platform,
			Views:    v.Views,
			Likes:    v.Likes,
			Comments: v.Comments,
		})
	}

	stories := r.Stories
	if len(stories) == 0 && r.StoryURL != nil {
		story := storyRequest{
			StoryURL:       *r.StoryURL,
			ScreenshotFile: r.ScreenshotFile,
			ScreenshotURL:  r.ScreenshotURL,
		}
		if r.StoryReach != nil {
			story.Reach = *r.StoryReach
		}
		stories = []storyRequest{story}
	}
	for _, st := range stories {
		in.Stories = append(in.Stories, models.Story{
			StoryURL:       strings.TrimSpace(st.StoryURL),
			ScreenshotFile: st.ScreenshotFile,
			ScreenshotURL:  st.ScreenshotURL,
			Reach:          st.Reach,
		})
	}
	return in
}

func (s *Server) createReport(c *gin.Context) {
	var req createReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := s.svc.Reports.Submit(c.Request.Context(), identity(c).UserID, req.toNewReport())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report})
}

func (s *Server) myReports(c *gin.Context) {
	reports, page, err := s.svc.Reports.ListMine(c.Request.Context(), identity(c).UserID, models.ReportFilter{
		TaskID: optionalQuery(c, "taskId"),
		Status: queryEnum[models.ReportStatus](c, "status"),
		Type:   queryEnum[models.ReportType](c, "type"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "reports", reports, page)
}

func (s *Server) getReport(c *gin.Context) {
	report, err := s.svc.Reports.Get(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) adminListReports(c *gin.Context) {
	reports, page, err := s.svc.Reports.List(c.Request.Context(), models.ReportFilter{
		UserID: optionalQuery(c, "userId"),
		TaskID: optionalQuery(c, "taskId"),
		Status: queryEnum[models.ReportStatus](c, "status"),
		Type:   queryEnum[models.ReportType](c, "type"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "reports", reports, page)
}

type moderateReportRequest struct {
	Status          models.ReportStatus `json:"status"`
	Notes           *string             `json:"notes"`
	RejectionReason *string             `json:"rejectionReason"`
}

func (s *Server) moderateReport(c *gin.Context) {
	var req moderateReportRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.svc.Reports.Moderate(c.Request.Context(), models.Moderation{
		ReportID:        c.Param("id"),
		ModeratorID:     identity(c).UserID,
		Status:          models.ReportStatus(strings.ToUpper(string(req.Status))),
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"report": res.Report}
	if res.Reward != nil {
		body["transaction"] = res.Reward
	}
	c.JSON(http.StatusOK, body)
}

// uploadScreenshot принимает multipart поле "screenshot" и сохраняет его в blob store.
func (s *Server) uploadScreenshot(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := s.svc.Gates.RequireProfile(ctx, identity(c).UserID); err != nil {
		respondError(c, err)
		return
	}

	maxBytes := s.cfg.Uploads.MaxBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	header, err := c.FormFile("screenshot")
	if err != nil {
		respondError(c, domain.Validation("Файл не загружен",
			domain.FieldError{Field: "screenshot", Message: "required"}))
		return
	}
	if header.Size > maxBytes {
		respondError(c, domain.Validation("Файл слишком большой",
			domain.FieldError{Field: "screenshot", Message: fmt.Sprintf("must be at most %d bytes", maxBytes)}))
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, domain.Internal(fmt.Errorf("open upload: %w", err)))
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		respondError(c, domain.Internal(fmt.Errorf("read upload: %w", err)))
		return
	}
	ext, ok := allowedImages[http.DetectContentType(head[:n])]
	if !ok {
		respondError(c, domain.Validation("Разрешены только изображения",
			domain.FieldError{Field: "screenshot", Message: "must be jpeg, png, gif or webp"}))
		return
	}

	stored, err := s.svc.Blobs.Save(ctx, ext, io.MultiReader(bytes.NewReader(head[:n]), file))
	if err != nil {
		respondError(c, domain.Internal(fmt.Errorf("store upload: %w", err)))
		return
	}
	c.JSON(http.StatusOK, stored)
}
