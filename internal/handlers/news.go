package handlers

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/furniro/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 8 << 20
	formFieldTitle     = "title"
	formFieldLocation  = "location"
	formFieldDate      = "date"
	formFieldContent   = "content"
	formFieldCategory  = "category"
	formFieldImage     = "image"
	newsNotFound       = "News not found"
)

const (
	msgInvalidBody     = "Invalid request body"
	msgInvalidForm     = "Invalid multipart form"
	msgOneImage        = "Only one image is allowed"
	msgUnreadableImage = "Failed to read image"
	msgImageTooLarge   = "Image is too large"
)

// NewsHandler provides HTTP handlers for news articles.
type NewsHandler struct {
	newsService *services.NewsService
	logger      *zap.Logger
}

// NewNewsHandler constructs a handler with the provided service.
func NewNewsHandler(newsService *services.NewsService, logger *zap.Logger) *NewsHandler {
	return &NewsHandler{
		newsService: newsService,
		logger:      logger,
	}
}

// NewsRouter registers news routes on the given router. Writes go through
// requireAdmin; reading and liking are public.
func NewsRouter(
	r chi.Router,
	newsService *services.NewsService,
	requireAdmin func(http.Handler) http.Handler,
	logger *zap.Logger,
) {
	handler := NewNewsHandler(newsService, logger)

	r.Get("/", handler.ListNews)
	r.Get("/search", handler.SearchNews)
	r.With(requireAdmin).Post("/", handler.AddNews)
	r.Route("/{newsID}", func(r chi.Router) {
		r.With(requireAdmin).Put("/", handler.UpdateNews)
		r.With(requireAdmin).Delete("/", handler.DeleteNews)
		r.Post("/like", handler.LikeNews)
		r.Get("/image", handler.NewsImage)
	})
}

func (h *NewsHandler) ListNews(w http.ResponseWriter, r *http.Request) {
	articles, err := h.newsService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *NewsHandler) SearchNews(w http.ResponseWriter, r *http.Request) {
	articles, err := h.newsService.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, h.logger, err, "No news found")
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (h *NewsHandler) AddNews(w http.ResponseWriter, r *http.Request) {
	in, err := parseArticleRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	created, err := h.newsService.Add(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *NewsHandler) UpdateNews(w http.ResponseWriter, r *http.Request) {
	id, err := parseNewsID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := parseArticleRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	updated, err := h.newsService.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *NewsHandler) DeleteNews(w http.ResponseWriter, r *http.Request) {
	id, err := parseNewsID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.newsService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	h.logger.Info("news deleted", actor(r), zap.Int("id", id))
	writeJSON(w, http.StatusOK, DeleteResponse{Message: "News deleted", ID: id})
}

// LikeNews answers a repeated like with 200 and success=false.
func (h *NewsHandler) LikeNews(w http.ResponseWriter, r *http.Request) {
	id, err := parseNewsID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req LikeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.newsService.Like(r.Context(), id, req.Email)
	if err != nil {
		writeServiceError(w, h.logger, err, newsNotFound)
		return
	}

	resp := LikeResponse{Success: true, Message: "News liked", Likes: result.Likes}
	if !result.Liked {
		resp.Success = false
		resp.Message = "Already liked"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *NewsHandler) NewsImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseNewsID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, contentType, err := h.newsService.Image(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Image not found")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream image failed", zap.Int("id", id), zap.Error(err))
	}
}

// ArticleRequest is the JSON form of an article write. Multipart requests
// carry the same fields plus an optional image file.
type ArticleRequest struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Date     string `json:"date"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type LikeRequest struct {
	Email string `json:"email"`
}

type LikeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Likes   int    `json:"likes"`
}

type DeleteResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

func parseNewsID(r *http.Request) (int, error) {
	return parseID(chi.URLParam(r, "newsID"))
}

func parseArticleRequest(w http.ResponseWriter, r *http.Request) (services.ArticleInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return parseArticleForm(r)
	}

	var req ArticleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return services.ArticleInput{}, &services.ValidationError{Message: msgInvalidBody}
	}
	return services.ArticleInput{
		Title:    req.Title,
		Location: req.Location,
		Date:     req.Date,
		Content:  req.Content,
		Category: req.Category,
	}, nil
}

func parseArticleForm(r *http.Request) (services.ArticleInput, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.ArticleInput{}, &services.ValidationError{Message: msgInvalidForm}
	}

	in := services.ArticleInput{
		Title:    r.FormValue(formFieldTitle),
		Location: r.FormValue(formFieldLocation),
		Date:     r.FormValue(formFieldDate),
		Content:  r.FormValue(formFieldContent),
		Category: r.FormValue(formFieldCategory),
	}

	image, err := parseImageFile(r.MultipartForm)
	if err != nil {
		return services.ArticleInput{}, err
	}
	in.Image = image
	return in, nil
}

// parseImageFile returns nil when the form carries no image.
func parseImageFile(form *multipart.Form) (*services.ImageUpload, error) {
	if form == nil {
		return nil, nil
	}

	files := form.File[formFieldImage]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > 1 {
		return nil, &services.ValidationError{Message: msgOneImage}
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, &services.ValidationError{Message: msgUnreadableImage}
	}

	data, err := readFileLimited(file, services.MaxImageBytes)
	_ = file.Close()
	if err != nil {
		return nil, err
	}

	return &services.ImageUpload{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &services.ValidationError{Message: msgUnreadableImage}
	}
	if int64(len(data)) > limit {
		return nil, &services.ValidationError{Message: msgImageTooLarge}
	}
	return data, nil
}
