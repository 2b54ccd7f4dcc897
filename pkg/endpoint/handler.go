// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

const (
	requestIDHeader = "X-Request-ID"
	// RequestIDKey is the ExtraData key carrying the HTTP request id.
	RequestIDKey = "endpoint.request_id"
	maxBodySize  = 4 << 20
)

func (e *Endpoint) dispatch(c *gin.Context) {
	kind, err := pipeline.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read body: %v", err)})
		return
	}
	payload, err := e.service.Types().Decode(c.Param("contentType"), body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrUnknownContentType) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	msg, err := pipeline.NewMessage(kind, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id := c.GetString(RequestIDKey); id != "" {
		msg.ExtraData[RequestIDKey] = id
	}
	mc := pipeline.NewMessageContext(c.Request.Context(), msg, e.service.Provider())
	dispatchErr := e.service.Invoke(mc)

	resp, err := e.response(mc, dispatchErr)
	if err != nil {
		e.logger.Error("encode endpoint response", zap.String("message_id", msg.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if dispatchErr != nil {
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

// response flattens the message fields and adds result, error and, in debug
// mode, detail.
func (e *Endpoint) response(mc *pipeline.MessageContext, dispatchErr error) (gin.H, error) {
	data, err := json.Marshal(mc.Message)
	if err != nil {
		return nil, err
	}
	var body gin.H
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if mc.Result != nil {
		body["result"] = mc.Result
	}
	if dispatchErr != nil {
		body["error"] = dispatchErr.Error()
	} else if err := mc.Err(); err != nil {
		body["error"] = err.Error()
	}
	if e.config.Debug {
		if f := mc.Failure(); f != nil {
			body["detail"] = f.Detail()
		} else if dispatchErr != nil {
			body["detail"] = fmt.Sprintf("%+v", dispatchErr)
		}
	}
	return body, nil
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set(RequestIDKey, requestID)

		start := time.Now()
		c.Next()

		if ce := l.Check(zap.DebugLevel, "endpoint request"); ce != nil {
			ce.Write(
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("latency", time.Since(start)),
			)
		}
	}
}
