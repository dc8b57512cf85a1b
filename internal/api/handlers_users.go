package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"flariki/internal/models"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) adminLogin(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.svc.AdminAuth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      res.User,
	})
}

func (s *Server) adminMe(c *gin.Context) {
	user, err := s.svc.AdminAuth.Me(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) getMe(c *gin.Context) {
	user, err := s.svc.Users.Me(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// updateProfileRequest: пустая строка очищает поле.
type updateProfileRequest struct {
	Phone         *string `json:"phone" binding:"omitempty,max=32"`
	Email         *string `json:"email" binding:"omitempty,max=255"`
	CdekPvz       *string `json:"cdekPvz" binding:"omitempty,max=255"`
	Address       *string `json:"address" binding:"omitempty,max=500"`
	InstagramLink *string `json:"instagramLink"`
	YoutubeLink   *string `json:"youtubeLink"`
	TiktokLink    *string `json:"tiktokLink"`
	VkLink        *string `json:"vkLink"`
}

func (s *Server) updateMe(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.svc.Users.UpdateProfile(c.Request.Context(), identity(c).UserID, models.ProfileUpdate{
		Phone:         req.Phone,
		Email:         req.Email,
		CdekPvz:       req.CdekPvz,
		Address:       req.Address,
		InstagramLink: req.InstagramLink,
		YoutubeLink:   req.YoutubeLink,
		TiktokLink:    req.TiktokLink,
		VkLink:        req.VkLink,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) myTransactions(c *gin.Context) {
	rows, err := s.svc.Ledger.Recent(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

func (s *Server) listUsers(c *gin.Context) {
	users, page, err := s.svc.Users.List(c.Request.Context(), models.UserFilter{
		Status: queryEnum[models.UserStatus](c, "status"),
		Role:   queryEnum[models.Role](c, "role"),
		Search: strings.TrimSpace(c.Query("search")),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "users", users, page)
}

type moderateUserRequest struct {
	Status models.UserStatus `json:"status" binding:"required"`
	Notes  *string           `json:"notes"`
}

func (s *Server) moderateUser(c *gin.Context) {
	var req moderateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.svc.Users.Moderate(c.Request.Context(), identity(c).UserID, c.Param("id"), req.Status, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type assignTagsRequest struct {
	TagIDs []string `json:"tagIds" binding:"omitempty,dive,required"`
}

func (s *Server) assignTags(c *gin.Context) {
	var req assignTagsRequest
	if !bindJSON(c, &req) {
		return
	}
	tags, err := s.svc.Users.AssignTags(c.Request.Context(), identity(c).UserID, c.Param("id"), req.TagIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) userTransactions(c *gin.Context) {
	userID := c.Param("id")
	rows, page, err := s.svc.Ledger.Transactions(c.Request.Context(), models.TransactionFilter{
		UserID: &userID,
		Type:   queryEnum[models.TransactionType](c, "type"),
		Page:   pageFromQuery(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paginated(c, "transactions", rows, page)
}
