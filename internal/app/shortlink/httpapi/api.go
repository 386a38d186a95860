package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/platform/httpmiddleware"
)

const (
	msgBodyMissing      = "Request body is missing"
	msgURLRequired      = "\"url\" is a required field!"
	msgInvalidShort     = "Invalid name for short link"
	msgShortTaken       = "The proposed short link already exists."
	msgSaveFailed       = "Failed to save the record"
	msgIDNotFound       = "The specified id was not found"
	msgURLTooLong       = "The link is too long."
	msgInternalFailure  = "Internal Server Error"
	msgMethodNotAllowed = "Method not allowed"

	maxAPIBody = 1 << 20
)

type CreateRequest struct {
	URL      string `json:"url"`
	CustomID string `json:"custom_id,omitempty"`
}

type CreateResponse struct {
	URL       string `json:"url"`
	ShortLink string `json:"short_link"`
}

type OriginalResponse struct {
	URL string `json:"url"`
}

// decodeCreate 按字段逐个校验，错误信息与字段一一对应。
// 返回空字符串表示请求合法。
func decodeCreate(body io.Reader) (CreateRequest, string) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(body, maxAPIBody)).Decode(&raw); err != nil || len(raw) == 0 {
		return CreateRequest{}, msgBodyMissing
	}

	url, ok := raw["url"].(string)
	if !ok || url == "" {
		return CreateRequest{}, msgURLRequired
	}
	req := CreateRequest{URL: url}

	// custom_id: 缺省、null、"" 都表示自动生成
	switch v := raw["custom_id"].(type) {
	case nil:
	case string:
		if v != "" && shortlink.ValidateCustomID(v) != nil {
			return CreateRequest{}, msgInvalidShort
		}
		req.CustomID = v
	default:
		return CreateRequest{}, msgInvalidShort
	}
	return req, ""
}

func NewCreateHandler(c shortlink.Creator, links linkBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, msg := decodeCreate(r.Body)
		if msg != "" {
			httpmiddleware.WriteError(w, http.StatusBadRequest, msg)
			return
		}

		short, err := c.Register(r.Context(), req.URL, req.CustomID)
		if err != nil {
			switch shortlink.KindOf(err) {
			case shortlink.KindNamingConflict:
				httpmiddleware.WriteError(w, http.StatusBadRequest, msgShortTaken)
			case shortlink.KindValidation:
				httpmiddleware.WriteError(w, http.StatusBadRequest, msgURLTooLong)
			default:
				httpmiddleware.WriteError(w, http.StatusInternalServerError, msgSaveFailed)
			}
			return
		}

		httpmiddleware.WriteJSON(w, http.StatusCreated, CreateResponse{
			URL:       req.URL,
			ShortLink: links.short(r, short),
		})
	}
}

func NewGetOriginalHandler(res shortlink.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		original, err := res.Resolve(r.Context(), mux.Vars(r)["short_id"])
		if err != nil {
			if shortlink.KindOf(err) == shortlink.KindNotFound {
				httpmiddleware.WriteError(w, http.StatusNotFound, msgIDNotFound)
				return
			}
			httpmiddleware.WriteError(w, http.StatusInternalServerError, msgInternalFailure)
			return
		}
		httpmiddleware.WriteJSON(w, http.StatusOK, OriginalResponse{URL: original})
	}
}
