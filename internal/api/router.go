package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/TickerNews/internal/collector"
	"github.com/LJTian/TickerNews/internal/news"
	"github.com/LJTian/TickerNews/internal/storage"
)

// NewsService 由 news.Service 实现
type NewsService interface {
	GetNews(ctx context.Context, ticker string) news.AggregateResult
	Refresh(ctx context.Context, ticker string) news.AggregateResult
	Sources() []collector.SourceConfig
}

// Watchlist 由 storage.Store 实现
type Watchlist interface {
	ListWatchTickers(ctx context.Context) ([]string, error)
	AddWatchTicker(ctx context.Context, ticker string) (string, error)
	RemoveWatchTicker(ctx context.Context, ticker string) error
}

type Server struct {
	news      NewsService
	watchlist Watchlist
}

// NewServer watchlist 为 nil 时关注列表接口返回 503
func NewServer(svc NewsService, watchlist Watchlist) *Server {
	return &Server{news: svc, watchlist: watchlist}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news/:ticker", s.getNews)
		v1.GET("/sources", s.listSources)
		v1.GET("/watchlist", s.listWatchlist)
		v1.POST("/watchlist", s.addWatchlist)
		v1.DELETE("/watchlist/:ticker", s.removeWatchlist)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getNews ?fresh=true 跳过缓存读取
func (s *Server) getNews(c *gin.Context) {
	ticker := c.Param("ticker")
	if news.NormalizeTicker(ticker) == "" {
		badRequest(c, "invalid_ticker", "ticker must be 1-15 letters, digits or . - ^ =")
		return
	}

	fresh, _ := strconv.ParseBool(c.DefaultQuery("fresh", "false"))
	var res news.AggregateResult
	if fresh {
		res = s.news.Refresh(c.Request.Context(), ticker)
	} else {
		res = s.news.GetNews(c.Request.Context(), ticker)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res,
	})
}

func (s *Server) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.news.Sources(),
	})
}

func (s *Server) listWatchlist(c *gin.Context) {
	if s.watchlist == nil {
		watchlistUnavailable(c)
		return
	}
	tickers, err := s.watchlist.ListWatchTickers(c.Request.Context())
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    tickers,
	})
}

type watchRequest struct {
	Ticker string `json:"ticker" binding:"required"`
}

func (s *Server) addWatchlist(c *gin.Context) {
	if s.watchlist == nil {
		watchlistUnavailable(c)
		return
	}
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "body must be {\"ticker\": \"...\"}")
		return
	}
	sym, err := s.watchlist.AddWatchTicker(c.Request.Context(), req.Ticker)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    gin.H{"ticker": sym},
	})
}

func (s *Server) removeWatchlist(c *gin.Context) {
	if s.watchlist == nil {
		watchlistUnavailable(c)
		return
	}
	if err := s.watchlist.RemoveWatchTicker(c.Request.Context(), c.Param("ticker")); err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
	})
}

func (s *Server) storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidTicker):
		badRequest(c, "invalid_ticker", "invalid ticker")
	case errors.Is(err, storage.ErrNoDatabase):
		watchlistUnavailable(c)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
	}
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    code,
		"message": msg,
	})
}

func watchlistUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":    "watchlist_unavailable",
		"message": "watchlist requires POSTGRES_DSN",
	})
}
