// Gate HTTP handlers.
//
// This file exposes the camera-facing endpoints:
//   - POST /plates/read   (read only, the ledger is not touched)
//   - POST /gate/entry    (read + open session)
//   - POST /gate/exit     (read + close session, fee on the receipt)
//
// The frame is sent either as multipart form field "image" or as the raw
// request body (image/jpeg, image/png, ...).
package handlers

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/parking-alpr/internal/services"
	"github.com/tbourn/parking-alpr/internal/vision"
)

// errFrameTooLarge is returned by frame when the upload exceeds the cap.
var errFrameTooLarge = errors.New("image too large")

// frame reads the uploaded frame bytes. It writes the error response itself
// and returns nil when the request carries no usable upload.
func (h *Handlers) frame(c *gin.Context) []byte {
	var src io.Reader
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, errFrameTooLarge.Error())
				return nil
			}
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, `multipart field "image" required`)
			return nil
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot open uploaded image")
			return nil
		}
		defer f.Close()
		src = f
	} else {
		src = c.Request.Body
	}

	data, err := io.ReadAll(io.LimitReader(src, h.maxImageBytes+1))
	switch {
	case isTooLarge(err), err == nil && int64(len(data)) > h.maxImageBytes:
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("%s (limit %d bytes)", errFrameTooLarge, h.maxImageBytes))
		return nil
	case err != nil:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read request body")
		return nil
	case len(data) == 0:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image required")
		return nil
	}
	return data
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// decodeFrame decodes data. Undecodable frames yield a bad_image read.
func decodeFrame(data []byte) (image.Image, services.ReadResult, bool) {
	img, _, err := vision.Decode(data)
	if err != nil {
		return nil, services.ReadResult{Error: services.ReadBadImage}, false
	}
	return img, services.ReadResult{}, true
}

// ReadPlate godoc
// @ID          readPlate
// @Summary     Read the plate in a camera frame
// @Description Runs detection, OCR, ranking and correction on the frame. The ledger is not touched.
// @Tags        Gate
// @Accept      multipart/form-data
// @Accept      image/jpeg
// @Accept      image/png
// @Produce     json
//
// @Param       image  formData  file  false "Camera frame (or send the image as the raw body)"
//
// @Success     200  {object}  services.ReadResult
// @Failure     400  {object}  handlers.ErrorResponse  "No image"
// @Failure     413  {object}  handlers.ErrorResponse  "Image too large"
// @Failure     422  {object}  handlers.ErrorResponse  "No usable plate"
// @Router      /plates/read [post]
func (h *Handlers) ReadPlate(c *gin.Context) {
	data := h.frame(c)
	if data == nil {
		return
	}
	img, read, decoded := decodeFrame(data)
	if decoded {
		read = h.recog.ReadPlate(c.Request.Context(), img)
	}
	if !read.Usable() {
		h.readFailed(c, nil, read)
		return
	}
	ok(c, http.StatusOK, read)
}

// GateEntry godoc
// @ID          gateEntry
// @Summary     Open a session from an entry camera frame
// @Description Reads the plate and records an entry. Retries are safe with Idempotency-Key.
// @Tags        Gate
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Gate-ID        header    string  false "Gate controller id"  example(north-1)
// @Param       Idempotency-Key  header    string  false "Replays the first response for retries"
// @Param       image            formData  file    false "Camera frame (or raw body)"
//
// @Success     201  {object}  handlers.EntryResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No image"
// @Failure     409  {object}  handlers.ErrorResponse  "Already parked"
// @Failure     422  {object}  handlers.ErrorResponse  "No usable plate"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /gate/entry [post]
func (h *Handlers) GateEntry(c *gin.Context) {
	data := h.frame(c)
	if data == nil {
		return
	}
	img, read, decoded := decodeFrame(data)
	if !decoded {
		h.respondEntry(c, services.EntryResult{Outcome: services.OutcomeReadFailed, Read: read}, nil)
		return
	}
	res := h.recog.RecordEntryFromImage(c.Request.Context(), img)
	h.respondEntry(c, res, &res.Read)
}

// GateExit godoc
// @ID          gateExit
// @Summary     Close a session from an exit camera frame
// @Description Reads the plate and records an exit. Without an open session a BLOCKED row is written and 403 returned.
// @Tags        Gate
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-Gate-ID        header    string  false "Gate controller id"  example(south-2)
// @Param       Idempotency-Key  header    string  false "Replays the first response for retries"
// @Param       image            formData  file    false "Camera frame (or raw body)"
//
// @Success     200  {object}  handlers.ExitResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No image"
// @Failure     403  {object}  handlers.ErrorResponse  "Exit blocked"
// @Failure     422  {object}  handlers.ErrorResponse  "No usable plate"
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /gate/exit [post]
func (h *Handlers) GateExit(c *gin.Context) {
	data := h.frame(c)
	if data == nil {
		return
	}
	img, read, decoded := decodeFrame(data)
	if !decoded {
		h.respondExit(c, services.ExitResult{Outcome: services.OutcomeReadFailed, Read: read}, nil)
		return
	}
	res := h.recog.RecordExitFromImage(c.Request.Context(), img)
	h.respondExit(c, res, &res.Read)
}
