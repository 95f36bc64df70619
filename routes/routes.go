package routes

import (
	"ReframeGo/controllers"
	"ReframeGo/middleware"
	"ReframeGo/services"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, drafts *services.DraftService, quota *services.QuotaService,
	reframe *services.ReframeService, store services.RecordStore) {
	authController := controllers.AuthController{}
	draftController := controllers.NewDraftController(drafts, quota)
	entryController := controllers.NewEntryController(store)
	reframeController := controllers.NewReframeController(reframe, store)
	userController := controllers.NewUserController(quota)
	redeemController := controllers.RedeemController{}

	// 公开路由（无需认证）
	public := r.Group("/api/v1")
	{
		public.POST("/auth/apple", authController.AppleLogin)
		public.POST("/auth/test-user", authController.CreateTestUser)
	}

	// 需要认证的路由
	private := r.Group("/api/v1")
	private.Use(middleware.AuthMiddleware()) // 应用认证中间件
	{
		// 草稿向导接口
		private.POST("/draft", draftController.StartDraft)
		private.GET("/draft", draftController.GetDraft)
		private.POST("/draft/load/:id", draftController.LoadDraft)
		private.PUT("/draft/situation", draftController.UpdateSituation)
		private.PUT("/draft/urge", draftController.UpdateUrge)
		private.PUT("/draft/sensations", draftController.UpdateSensations)
		private.PUT("/draft/emotions", draftController.UpdateEmotions)
		private.PUT("/draft/thoughts", draftController.UpdateThoughts)
		private.PUT("/draft/responses/:thoughtId", draftController.UpdateAdaptiveResponse)
		private.PUT("/draft/outcomes/:thoughtId", draftController.UpdateOutcome)
		private.POST("/draft/save", draftController.SaveDraft)
		private.POST("/draft/finish", draftController.FinishDraft)
		private.POST("/draft/abandon", draftController.AbandonDraft)

		// 记录接口
		private.GET("/entries", entryController.ListEntries)
		private.GET("/entries/:id", entryController.GetEntry)
		private.DELETE("/entries/:id", entryController.DeleteEntry)
		private.POST("/sync/entries", entryController.SyncEntries)
		private.GET("/sync/updates", entryController.GetUpdates)

		// AI重构接口
		private.POST("/entries/:id/reframe", reframeController.GenerateReframe)
		private.POST("/reward/ad", reframeController.RewardAd)

		// 用户接口
		private.GET("/user", userController.GetUser)
		private.GET("/user/energy", userController.GetEnergy)
		private.GET("/user/quota", userController.GetQuota)
		private.POST("/redeem", redeemController.RedeemCode)
	}

	// 内部路由组（仅限服务器内部调用）
	internal := r.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware()) // 添加内部认证中间件
	{
		internal.GET("/redeem/generate", redeemController.CreateRedeemCode)
	}

	// 测试路由
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
}
