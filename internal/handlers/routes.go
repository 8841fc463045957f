package handlers

import "github.com/gin-gonic/gin"

// Routes groups what RegisterRoutes mounts behind the auth middleware.
type Routes struct {
	Chats     *ChatHandler
	Messages  *MessageHandler
	Users     *UserHandler
	WebSocket gin.HandlerFunc
	Auth      gin.HandlerFunc
	SendLimit gin.HandlerFunc
}

// RegisterRoutes mounts the chat and message API.
func RegisterRoutes(router gin.IRouter, r Routes) {
	api := router.Group("/", r.Auth)

	api.GET("/chats", r.Chats.ListChats)
	api.POST("/chats", r.Chats.CreateChat)
	api.POST("/chats/get-or-create", r.Chats.GetOrCreateChat)
	api.POST("/chats/groups", r.Chats.CreateGroup)
	api.PUT("/chats/groups/:chat_id", r.Chats.UpdateGroup)
	api.PATCH("/chats/groups/:chat_id/remove-participants", r.Chats.RemoveParticipants)
	api.DELETE("/chats/:chat_id/me", r.Chats.HideChat)
	api.GET("/chats/:chat_id/messages", r.Messages.GetChatMessages)

	if r.SendLimit != nil {
		api.POST("/messages", r.SendLimit, r.Messages.SendMessage)
	} else {
		api.POST("/messages", r.Messages.SendMessage)
	}
	api.POST("/messages/last", r.Messages.LastMessages)
	api.PUT("/messages/:message_id", r.Messages.EditMessage)
	api.PATCH("/messages/seen", r.Messages.MarkSeen)
	api.PATCH("/messages/delivered", r.Messages.MarkDelivered)
	api.DELETE("/messages", r.Messages.DeleteMessages)

	if r.Users != nil {
		api.DELETE("/users/me", r.Users.DeleteMe)
	}

	if r.WebSocket != nil {
		api.GET("/ws", r.WebSocket)
	}
}
