package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"study-agents/api/internal/agent"
	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/store"
)

const photoAcceptedText = "Photo received. If the homework spans several photos, just send them one after another and I will glue the pages together."

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1]
	url, err := r.Bot.GetFileDirectURL(ph.FileID)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	img, err := download(url)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	if r.addToBatch(cid, msg.MediaGroupID, img) == 1 {
		r.send(cid, photoAcceptedText)
	}
}

// addToBatch queues img and (re)arms the debounce timer. It returns the
// number of pages queued so far.
func (r *Router) addToBatch(cid int64, mediaGroupID string, img []byte) int {
	key := fmt.Sprintf("chat:%d", cid)
	if mediaGroupID != "" {
		key = "grp:" + mediaGroupID
	}
	bi, _ := r.batches.LoadOrStore(key, &photoBatch{ChatID: cid, Key: key, images: make([][]byte, 0, 4)})
	b := bi.(*photoBatch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = append(b.images, img)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(r.debounce, func() { r.processBatch(key) })
	return len(b.images)
}

func (r *Router) processBatch(key string) {
	bi, ok := r.batches.LoadAndDelete(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	images := append([][]byte(nil), b.images...)
	chatID := b.ChatID
	b.mu.Unlock()

	if len(images) == 0 {
		return
	}
	unlock := r.Sessions.lock(chatID)
	defer unlock()

	merged, err := combineAsOne(images)
	if err != nil {
		r.Log.Warn("photo merge failed", "chat_id", chatID, "pages", len(images), "error", err)
		r.send(chatID, "⚠️ Could not read the photo. Please send it again as a JPEG or PNG.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	r.runHomework(ctx, chatID, merged)
}

func (r *Router) runHomework(ctx context.Context, chatID int64, img []byte) {
	req := types.ImageRequest(img, "image/jpeg")
	if rep, ok := r.cachedHomework(ctx, req); ok {
		r.Log.Info("homework served from history", "chat_id", chatID)
		r.send(chatID, formatHomework(rep))
		return
	}
	rep, err := r.Orch.AnalyzeHomework(ctx, req, types.HomeworkOptions{})
	if err != nil {
		r.SendError(chatID, err)
		return
	}
	r.send(chatID, formatHomework(rep))
}

func (r *Router) cachedHomework(ctx context.Context, req types.PipelineRequest) (types.HomeworkReport, bool) {
	var rep types.HomeworkReport
	if r.Runs == nil || r.CacheTTL <= 0 {
		return rep, false
	}
	hash, err := agent.InputHash(req)
	if err != nil {
		return rep, false
	}
	run, err := r.Runs.FindLatestByHash(ctx, "homework", hash, r.CacheTTL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.Log.Warn("run cache lookup failed", "error", err)
		}
		return rep, false
	}
	if err := json.Unmarshal(run.Result, &rep); err != nil {
		r.Log.Warn("cached run unreadable", "run_id", run.ID, "error", err)
		return rep, false
	}
	return rep, true
}

// combineAsOne stacks the pages vertically, centred on white, and scales the
// result down to maxPixels.
func combineAsOne(images [][]byte) ([]byte, error) {
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, err := decodeImage(b)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		maxW = max(maxW, img.Bounds().Dx())
		sumH += img.Bounds().Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, errors.New("empty images")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(dst, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	final := image.Image(dst)
	if total := maxW * sumH; total > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(total))
		newW := max(1, int(float64(maxW)*scale+0.5))
		newH := max(1, int(float64(sumH)*scale+0.5))
		final = scaleDownNN(dst, newW, newH)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, final, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeImage(b []byte) (image.Image, error) {
	switch {
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8:
		return jpeg.Decode(bytes.NewReader(b))
	case len(b) >= 8 && bytes.Equal(b[:8], []byte("\x89PNG\r\n\x1a\n")):
		return png.Decode(bytes.NewReader(b))
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

func scaleDownNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*srcH)/newH
		for x := 0; x < newW; x++ {
			sx := sb.Min.X + (x*srcW)/newW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func download(url string) ([]byte, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download: status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
