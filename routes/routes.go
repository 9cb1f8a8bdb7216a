package routes

import (
	"net/http"

	"lagat/auth"
	"lagat/feed"
	"lagat/home"
	"lagat/imageproxy"
	"lagat/middleware"
	"lagat/pantry"
	"lagat/ratelim"
	"lagat/recipes"

	"github.com/julienschmidt/httprouter"
)

// Deps carries the services the routes are wired to.
type Deps struct {
	Auth        *auth.Service
	Middleware  *middleware.Auth
	RateLimiter *ratelim.RateLimiter
	Recipes     *recipes.Handlers
	Feed        *feed.Sessions
	Pantry      *pantry.Service
	Home        *home.Service
	ImageProxy  *imageproxy.Proxy
}

func AddAuthRoutes(router *httprouter.Router, d *Deps) {
	router.POST("/api/v1/auth/register", d.RateLimiter.RateLimit(auth.Register(d.Auth)))
	router.POST("/api/v1/auth/login", d.RateLimiter.RateLimit(auth.Login(d.Auth)))
	router.GET("/api/v1/user/me", d.Middleware.Authenticate(auth.Me(d.Auth)))
}

func AddRecipeRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/api/v1/recipes/feed", d.Middleware.Authenticate(recipes.GetFeed(d.Recipes)))
	router.GET("/api/v1/recipes/recipe/:id", d.Middleware.OptionalAuth(recipes.GetRecipe(d.Recipes)))
}

func AddPantryRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/api/v1/pantry", d.Middleware.Authenticate(pantry.GetPantry(d.Pantry)))
}

// AddCommandRoutes mounts the remote command endpoint. Every command is a
// bearer-authenticated POST answering {success, message}.
func AddCommandRoutes(router *httprouter.Router, d *Deps) {
	router.POST("/api/v1/commands/add_ingredient", d.RateLimiter.RateLimit(d.Middleware.Authenticate(pantry.AddIngredient(d.Pantry))))
	router.POST("/api/v1/commands/remove_ingredient", d.RateLimiter.RateLimit(d.Middleware.Authenticate(pantry.RemoveIngredient(d.Pantry))))
	router.POST("/api/v1/commands/update_preferred_store", d.RateLimiter.RateLimit(d.Middleware.Authenticate(auth.UpdatePreferredStore(d.Auth))))
}

func AddHomeRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/api/v1/home/:apiRoute", d.Middleware.OptionalAuth(home.GetHomeContent(d.Home)))
}

func AddImageProxyRoutes(router *httprouter.Router, d *Deps) {
	router.GET(imageproxy.Path, d.RateLimiter.RateLimit(d.ImageProxy.Handle))
}

// AddLiveRoutes mounts the websocket endpoints. Browsers cannot set headers
// on a websocket handshake, so these accept ?token= as well.
func AddLiveRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/ws/pantry", d.Middleware.Authenticate(pantry.ServeSocket(d.Pantry)))
	router.GET("/ws/feed", d.Middleware.Authenticate(feed.ServeSocket(d.Feed)))
}

func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("200"))
}

// New builds the router with every route group mounted.
func New(d *Deps) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)

	AddAuthRoutes(router, d)
	AddCommandRoutes(router, d)
	AddHomeRoutes(router, d)
	AddImageProxyRoutes(router, d)
	AddLiveRoutes(router, d)
	AddPantryRoutes(router, d)
	AddRecipeRoutes(router, d)
	return router
}
