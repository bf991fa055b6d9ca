package server

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// spaFallback 为前端构建产物提供静态文件，未知路径回退到 index.html 由前端路由处理。
// /api 下的未知路径仍返回 404。
func spaFallback(dir string) gin.HandlerFunc {
	fs := gin.Dir(dir, false)
	files := http.FileServer(fs)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Status(http.StatusNotFound)
			return
		}
		clean := path.Clean("/" + c.Request.URL.Path)
		if f, err := fs.Open(clean); err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		c.File(path.Join(dir, "index.html"))
	}
}
