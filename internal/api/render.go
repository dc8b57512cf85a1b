package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"flariki/internal/domain"
	"flariki/internal/models"
)

var validatorOnce sync.Once

// registerValidator makes field errors carry json names.
func registerValidator() {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// respondError renders err as {error, message, details}.
func respondError(c *gin.Context, err error) {
	de, ok := domain.As(err)
	if !ok {
		de = domain.Internal(err)
	}

	status := de.HTTPStatus()
	body := gin.H{
		"error":   de.Kind.String(),
		"message": de.Message,
	}
	if de.Code != "" {
		body["error"] = de.Code
	}

	switch {
	case len(de.Fields) > 0:
		body["details"] = de.Fields
	case de.Kind == domain.KindForbidden:
		body["reason"] = de.Code
		for k, v := range de.Details {
			body[k] = v
		}
	case len(de.Details) > 0:
		body["details"] = de.Details
	}

	if de.Kind == domain.KindInternal {
		log := zerolog.Ctx(c.Request.Context())
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		if c.GetBool(ctxDevMode) && de.Err != nil {
			body["details"] = de.Err.Error()
		}
	}

	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the body and converts binding failures to field errors.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]domain.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, domain.FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
		}
		return domain.Validation("Ошибка валидации", fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return domain.Validation("Ошибка валидации", domain.FieldError{Field: typeErr.Field, Message: "must be " + typeErr.Type.String()})
	}
	if errors.Is(err, io.EOF) {
		return domain.Validation("request body is required")
	}
	return domain.Validation("invalid request body: " + err.Error())
}

// fieldPath: "createReportRequest.videoLinks[0].url" -> "videoLinks[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "invalid value"
}

func pageFromQuery(c *gin.Context) models.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.Page{Page: page, Limit: limit}.Normalize()
}

func optionalQuery(c *gin.Context, key string) *string {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

// queryEnum returns a typed pointer for a non-empty query value.
func queryEnum[T ~string](c *gin.Context, key string) *T {
	v := optionalQuery(c, key)
	if v == nil {
		return nil
	}
	t := T(strings.ToUpper(*v))
	return &t
}

// queryDate accepts RFC3339 or YYYY-MM-DD.
func queryDate(c *gin.Context, key string) (*time.Time, error) {
	v := optionalQuery(c, key)
	if v == nil {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, *v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", *v)
	if err != nil {
		return nil, domain.Validation("invalid date", domain.FieldError{Field: key, Message: "must be YYYY-MM-DD or RFC3339"})
	}
	return &t, nil
}

func paginated(c *gin.Context, key string, items interface{}, p models.Pagination) {
	c.JSON(http.StatusOK, gin.H{
		key:          items,
		"pagination": p,
	})
}
