package registration

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
)

// closeDelay is the user-visible confirmation window before the
// interactive surface closes after a successful registration or login.
const closeDelay = 1500 * time.Millisecond

// Surface is the one-shot interactive onboarding surface. It closes
// itself shortly after either variant succeeds; a device registers at
// most once per install unless explicitly re-logged-in.
type Surface struct {
	flow *Flow
	log  *logging.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewSurface creates the onboarding surface around a flow.
func NewSurface(flow *Flow, log *logging.Logger) *Surface {
	if log == nil {
		log = logging.NewNop()
	}
	return &Surface{
		flow: flow,
		log:  log,
		done: make(chan struct{}),
	}
}

// Done is closed once the surface has shut after a successful onboarding.
func (s *Surface) Done() <-chan struct{} {
	return s.done
}

// Routes mounts the onboarding endpoints.
func (s *Surface) Routes(r gin.IRouter) {
	r.POST("/v1/registration/new", s.handleRegister)
	r.POST("/v1/registration/login", s.handleLogin)
	r.GET("/v1/registration/status", s.handleStatus)
}

type registerForm struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

type loginForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Surface) handleRegister(c *gin.Context) {
	if s.gone(c) {
		return
	}

	var form registerForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := s.flow.Register(c.Request.Context(), form.Username, form.Password, form.ConfirmPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Registration successful!"})
	s.scheduleClose()
}

func (s *Surface) handleLogin(c *gin.Context) {
	if s.gone(c) {
		return
	}

	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := s.flow.Login(c.Request.Context(), form.Username, form.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login successful!"})
	s.scheduleClose()
}

func (s *Surface) handleStatus(c *gin.Context) {
	id, err := s.flow.Identity(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read identity state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registered": id.Registered,
		"username":   id.Username,
	})
}

// gone rejects onboarding attempts after the surface has closed.
func (s *Surface) gone(c *gin.Context) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		c.JSON(http.StatusGone, gin.H{"error": "registration surface closed"})
	}
	return closed
}

// scheduleClose shuts the surface after the confirmation delay.
func (s *Surface) scheduleClose() {
	s.closeOnce.Do(func() {
		time.AfterFunc(closeDelay, func() {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.log.Info("registration surface closed")
			close(s.done)
		})
	})
}
