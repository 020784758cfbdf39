// Package storage は公開ディレクトリの静的ファイルを読み出して返します。
package storage

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/wiki-gate/internal/logging"
)

// ErrNotFound はファイルが存在しない場合に返されます。
var ErrNotFound = errors.New("storage: file not found")

const defaultContentType = "application/octet-stream"

// contentTypes は拡張子と Content-Type の対応です。ここにない拡張子は defaultContentType になります。
var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// ContentType はファイル名の拡張子から Content-Type を返します。
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return defaultContentType
}

// Local は root 以下のファイルを扱います。
type Local struct {
	root string
}

// NewLocal は Local を作成します。
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Root は公開ディレクトリのパスです。
func (l *Local) Root() string {
	return l.root
}

// Resolve は URL パスを root 以下のファイルパスに変換します。
// ".." を含むパスも root の外には出ません。
func (l *Local) Resolve(urlPath string) string {
	clean := path.Clean("/" + urlPath)
	return filepath.Join(l.root, filepath.FromSlash(clean))
}

// Exists は urlPath が通常ファイルとして存在するかを返します。
func (l *Local) Exists(urlPath string) bool {
	info, err := os.Stat(l.Resolve(urlPath))
	return err == nil && info.Mode().IsRegular()
}

// Load はファイル全体を読み込みます。存在しない場合は ErrNotFound を返します。
func (l *Local) Load(urlPath string) ([]byte, error) {
	data, err := os.ReadFile(l.Resolve(urlPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Serve はファイルを読み込んでレスポンスに書き込みます。
// 存在しない場合は 404、その他の読み込みエラーは 500 です。
func (l *Local) Serve(c *gin.Context, urlPath string) {
	data, err := l.Load(urlPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, "File Not Found")
			return
		}
		logging.FromContext(c, nil).Error("failed to read static file",
			zap.String("path", urlPath),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Data(http.StatusOK, ContentType(urlPath), data)
}
