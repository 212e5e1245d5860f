package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/client"
	"rmashqip/internal/handlers"
	"rmashqip/internal/middleware"
	"rmashqip/internal/remote"
	"rmashqip/internal/utils"
)

// Deps 路由需要的依赖；Remote 与 Auth 为 nil 时对应功能降级
type Deps struct {
	Registry        *client.Registry
	Verifier        middleware.TokenVerifier
	Auth            handlers.AuthBackend
	Remote          *remote.Client
	ContentCache    *utils.TTLCache[any]
	MaxMediaBytes   int64
	SignInPerMinute float64
	SignInBurst     int
	Log             zerolog.Logger
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	if deps.ContentCache == nil {
		deps.ContentCache = utils.NewTTLCache[any](64)
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Log)
	feedHandler := handlers.NewFeedHandler(deps.Remote, deps.MaxMediaBytes, deps.Log)
	commentHandler := handlers.NewCommentHandler(deps.Remote, deps.Log)
	profileHandler := handlers.NewProfileHandler(deps.Remote, deps.MaxMediaBytes, deps.Log)
	contentHandler := handlers.NewContentHandler(deps.Remote, deps.ContentCache, deps.Log)
	notificationHandler := handlers.NewNotificationHandler(deps.Remote)
	settingsHandler := handlers.NewSettingsHandler(deps.Log)
	adminHandler := handlers.NewAdminHandler(deps.Remote, deps.ContentCache, deps.Log)

	r.Use(middleware.LoadClient(deps.Registry, deps.Verifier))

	// 页面 (Pages)
	r.GET("/", contentHandler.Home)               // 首页动态
	r.GET("/events", contentHandler.EventsPage)   // 活动
	r.GET("/matches", contentHandler.MatchesPage) // 赛程
	r.GET("/members", contentHandler.MembersPage) // 成员

	api := r.Group("/api")

	// 认证 (Auth)
	signIn := middleware.RateLimit(deps.SignInPerMinute, deps.SignInBurst)
	api.POST("/auth/signin", signIn, authHandler.SignIn)
	api.POST("/auth/signup", signIn, authHandler.SignUp)
	api.POST("/auth/password/forgot", signIn, authHandler.ForgotPassword)
	api.POST("/auth/password/reset", signIn, authHandler.ResetPassword)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/auth/oauth/:provider", authHandler.OAuth)
	api.GET("/auth/callback/:provider", authHandler.Callback)
	api.POST("/auth/signout", authHandler.SignOut)
	api.GET("/auth/session", authHandler.Session)

	// 公共接口 (Public)
	api.GET("/posts", feedHandler.List)
	api.GET("/posts/trending", feedHandler.Trending)
	api.GET("/posts/:id/comments", commentHandler.List)
	api.GET("/profiles/:id", profileHandler.Get)
	api.GET("/profiles/:id/posts", profileHandler.Posts)
	api.GET("/profiles/:id/followers", profileHandler.Followers)
	api.GET("/profiles/:id/following", profileHandler.Following)
	api.GET("/members", profileHandler.Members)
	api.GET("/events", contentHandler.Events)
	api.GET("/matches", contentHandler.Matches)
	api.GET("/settings", settingsHandler.Get)
	api.PUT("/settings", settingsHandler.Update)

	// 受保护接口 (Protected)
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/posts", feedHandler.Create)
		authorized.GET("/posts/saved", feedHandler.Saved)
		authorized.PATCH("/posts/:id", feedHandler.Update)
		authorized.DELETE("/posts/:id", feedHandler.Delete)
		authorized.POST("/posts/:id/like", feedHandler.Like)
		authorized.POST("/posts/:id/save", feedHandler.Save)
		authorized.POST("/posts/:id/share", feedHandler.Share)

		authorized.POST("/posts/:id/comments", commentHandler.Create)
		authorized.PATCH("/comments/:id", commentHandler.Update)
		authorized.DELETE("/comments/:id", commentHandler.Delete)

		authorized.PATCH("/profile", profileHandler.Update)
		authorized.POST("/profile/avatar", profileHandler.UploadAvatar)
		authorized.POST("/profiles/:id/follow", profileHandler.Follow)
		authorized.DELETE("/profiles/:id/follow", profileHandler.Unfollow)

		authorized.GET("/notifications", notificationHandler.List)
		authorized.POST("/notifications/:id/read", notificationHandler.Read)
		authorized.POST("/notifications/read-all", notificationHandler.ReadAll)
		authorized.DELETE("/notifications/:id", notificationHandler.Delete)
	}

	// 版主 (Moderator)
	moderator := api.Group("/moderation")
	moderator.Use(middleware.AuthRequired(), middleware.RequireModerator())
	{
		moderator.PATCH("/posts/:id", adminHandler.SetPostStatus)
		moderator.DELETE("/posts/:id", adminHandler.DeletePost)
	}

	// 管理员 (Admin)
	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RequireAdmin())
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.PATCH("/users/:id/role", adminHandler.SetRole)
		admin.POST("/users/:id/ban", adminHandler.Ban)
		admin.DELETE("/users/:id/ban", adminHandler.Unban)

		admin.POST("/events", adminHandler.CreateEvent)
		admin.PATCH("/events/:id", adminHandler.UpdateEvent)
		admin.DELETE("/events/:id", adminHandler.DeleteEvent)
		admin.POST("/matches", adminHandler.CreateMatch)
		admin.PATCH("/matches/:id", adminHandler.UpdateMatch)
		admin.DELETE("/matches/:id", adminHandler.DeleteMatch)
	}
}
