package http

// Route patterns for the request actor HTTP surface.
const (
	routeProve  = "/v1/requests/prove"
	routeCancel = "/v1/requests/cancel"
	routeStatus = "/v1/requests/status"
	routeList   = "/v1/requests"
	routePause  = "/v1/actor/pause"
)

// Route names for mux URL building.
const (
	routeNameProve  = "requests_prove"
	routeNameCancel = "requests_cancel"
	routeNameStatus = "requests_status"
	routeNameList   = "requests_list"
	routeNamePause  = "actor_pause"
)
