// Package request はリクエストボディの読み取りと JSON の解析を提供します。
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const redacted = "***"

// MalformedBodyError はボディを JSON として解析できなかったことを表します。
type MalformedBodyError struct {
	Err error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("failed to parse request body: %v", e.Err)
}

func (e *MalformedBodyError) Unwrap() error {
	return e.Err
}

// ReadError はボディの読み取り自体に失敗したことを表します。
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read request body: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Decode はボディを最後まで読み、JSON として dst にデコードします。
//
// ボディを持たないメソッドと空のボディは何もせずに成功します（dst はゼロ値のまま）。
// 解析に失敗した場合は *MalformedBodyError を返します。
// 解析結果は debug レベルで記録されますが、"password" フィールドは必ず伏せ字にします。
func Decode(r *http.Request, dst any, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil || !carriesBody(r.Method) || r.Body == nil {
		return nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		logger.Debug("request content-type is not application/json", zap.String("content_type", ct))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r.Body); err != nil {
		logger.Error("request body read failed", zap.Error(err))
		return &ReadError{Err: err}
	}

	raw := bytes.TrimSpace(buf.Bytes())
	if len(raw) == 0 {
		logger.Warn("empty request body received")
		return nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		// 生のボディにはパスワードが含まれ得るので長さだけを残す
		logger.Error("request body is not valid JSON", zap.Error(err), zap.Int("bytes", len(raw)))
		return &MalformedBodyError{Err: err}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Error("request body does not match expected shape", zap.Error(err))
		return &MalformedBodyError{Err: err}
	}

	if ce := logger.Check(zap.DebugLevel, "parsed request body"); ce != nil {
		ce.Write(zap.Any("body", Redact(generic)))
	}
	return nil
}

// Redact は "password" という名前のフィールドを深さに関係なく伏せ字に置き換えたコピーを返します。
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "password" {
				out[k] = redacted
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// IsMalformed は err が MalformedBodyError かどうかを返します。
func IsMalformed(err error) bool {
	var target *MalformedBodyError
	return errors.As(err, &target)
}
