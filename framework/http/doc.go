// Package http provides small request and response helpers for JSON
// handlers.
//
// # Request
//
//	req := gohttp.NewRequest(r)
//
//	var body struct {
//	    Name  string `json:"name"`
//	    Alias string `json:"alias"`
//	}
//	if err := req.BindJSON(&body); err != nil { ... }
//
//	prefix  := req.Query("prefix")
//	verbose := req.QueryBool("verbose", false)
//	name    := req.RouteParam("name")   // requires the chi router
//	token   := req.BearerToken()
//
// # Response
//
//	res := gohttp.NewResponse(w)
//
//	res.JSON(200, data)     // raw JSON with status
//	res.Success(data)       // 200 {"data": ...}
//	res.Created(data)       // 201 {"data": ...}
//	res.NoContent()         // 204
//	res.NotFound("no singleton [db]")   // 404 {"message": ..., "status": "Not Found"}
//	res.Fail(http.StatusConflict, err)  // 409 with err.Error() as the message
package http
