package router

import (
	"strings"

	"github.com/beego/beego/v2/server/web"
)

// RouteGroup 路由组
type RouteGroup struct {
	prefix   string
	filters  []web.FilterFunc
	after    []web.FilterFunc
	parent   *RouteGroup
	children []*RouteGroup
	routes   []Route
}

// Route 路由定义
type Route struct {
	Path       string
	Controller web.ControllerInterface
	Mapping    string
	Comment    string
}

// NewRouteGroup 创建路由组
func NewRouteGroup(prefix string) *RouteGroup {
	return &RouteGroup{prefix: prefix}
}

// Group 创建子路由组
func (rg *RouteGroup) Group(prefix string) *RouteGroup {
	child := NewRouteGroup(prefix)
	child.parent = rg
	rg.children = append(rg.children, child)
	return child
}

// Use 为组内全部路由添加过滤器
func (rg *RouteGroup) Use(filters ...web.FilterFunc) *RouteGroup {
	rg.filters = append(rg.filters, filters...)
	return rg
}

// After 添加请求完成后执行的过滤器，已写出响应也会执行
func (rg *RouteGroup) After(filters ...web.FilterFunc) *RouteGroup {
	rg.after = append(rg.after, filters...)
	return rg
}

// Handle 添加路由，mapping 形如 "post:Create"
func (rg *RouteGroup) Handle(path string, ctrl web.ControllerInterface, mapping string, comment ...string) *RouteGroup {
	route := Route{Path: path, Controller: ctrl, Mapping: mapping}
	if len(comment) > 0 {
		route.Comment = comment[0]
	}
	rg.routes = append(rg.routes, route)
	return rg
}

// GET 添加GET路由
func (rg *RouteGroup) GET(path string, ctrl web.ControllerInterface, method string, comment ...string) *RouteGroup {
	return rg.Handle(path, ctrl, "get:"+method, comment...)
}

// POST 添加POST路由
func (rg *RouteGroup) POST(path string, ctrl web.ControllerInterface, method string, comment ...string) *RouteGroup {
	return rg.Handle(path, ctrl, "post:"+method, comment...)
}

// Register 把组及子组的路由和过滤器注册到 handlers
func (rg *RouteGroup) Register(handlers *web.ControllerRegister) error {
	return rg.register(handlers, "")
}

func (rg *RouteGroup) register(handlers *web.ControllerRegister, pathPrefix string) error {
	prefix := pathPrefix + rg.prefix
	pattern := prefix + "/*"
	for _, filter := range rg.filters {
		if err := handlers.InsertFilter(pattern, web.BeforeRouter, filter); err != nil {
			return err
		}
	}
	for _, filter := range rg.after {
		if err := handlers.InsertFilter(pattern, web.FinishRouter, filter, web.WithReturnOnOutput(false)); err != nil {
			return err
		}
	}
	for _, route := range rg.routes {
		handlers.Add(prefix+route.Path, route.Controller, web.WithRouterMethods(route.Controller, route.Mapping))
	}
	for _, child := range rg.children {
		if err := child.register(handlers, prefix); err != nil {
			return err
		}
	}
	return nil
}

// GetAllRoutes 获取所有路由定义（用于调试和文档）
func (rg *RouteGroup) GetAllRoutes() []RouteDefinition {
	var routes []RouteDefinition
	rg.collectRoutes("", &routes)
	return routes
}

func (rg *RouteGroup) collectRoutes(prefix string, routes *[]RouteDefinition) {
	currentPrefix := prefix + rg.prefix

	for _, route := range rg.routes {
		for _, m := range strings.Split(route.Mapping, ";") {
			method, handler, _ := strings.Cut(m, ":")
			*routes = append(*routes, RouteDefinition{
				Method:  strings.ToUpper(method),
				Path:    currentPrefix + route.Path,
				Handler: handler,
				Comment: route.Comment,
			})
		}
	}

	for _, child := range rg.children {
		child.collectRoutes(currentPrefix, routes)
	}
}

// RouteDefinition 路由定义
type RouteDefinition struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
	Comment string `json:"comment,omitempty"`
}
