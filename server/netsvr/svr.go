package netsvr

import (
	"net/http"

	"github.com/zintix-labs/gachalab/server/app"
)

// NetSvr 路由行為 + 服務啟停。
//   - 只交給最外層組裝使用，其他層面向 NetRouter。
//   - 本身即是 app.Component，可直接交給 app.App 管理生命週期。
type NetSvr interface {
	NetRouter
	app.Component
	// Handler 回傳已註冊路由的 http.Handler
	Handler() http.Handler
}

// NetRouter 純路由行為，不含 Run/Shutdown，子模組只能註冊路由、不能控制 server 生命週期。
type NetRouter interface {
	Use(middleware func(http.Handler) http.Handler)

	Get(path string, h http.HandlerFunc)
	Post(path string, h http.HandlerFunc)
	Put(path string, h http.HandlerFunc)
	Delete(path string, h http.HandlerFunc)

	Group(path string, fn func(NetRouter))
}
