package server

import (
	"net/http"
	"time"

	"github.com/amoylab/sessionkv/pkg/version"

	"github.com/gin-gonic/gin"
)

const counterKey = "counter"

func (s *Server) handleCounterGet(c *gin.Context) {
	st := SessionFrom(c)
	var n int
	if _, err := st.Items().Get(counterKey, &n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": st.ID, "counter": n})
}

func (s *Server) handleCounterIncrement(c *gin.Context) {
	st := SessionFrom(c)
	var n int
	if _, err := st.Items().Get(counterKey, &n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	n++
	if err := st.Items().Set(counterKey, n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": st.ID, "counter": n})
}

func (s *Server) handleAbandon(c *gin.Context) {
	st := SessionFrom(c)
	st.Abandon()
	c.JSON(http.StatusOK, gin.H{"id": st.ID, "abandoned": true})
}

func (s *Server) handleNow(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"now":     time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.Get(),
	})
}
