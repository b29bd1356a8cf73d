package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ojomine/internal/approval"
	"ojomine/internal/batch"
	"ojomine/internal/commission"
	"ojomine/internal/ledger"
	"ojomine/internal/lifecycle"
	"ojomine/internal/ojomine"
)

// Services is the per-process wiring the handlers pull out of the gin
// context. The server builds it once at startup.
type Services struct {
	App       *ojomine.App
	Store     *ledger.Store
	Engine    *commission.Engine
	Manager   *lifecycle.Manager
	Workflow  *approval.Workflow
	Processor *batch.Processor
}

// NewServices wires the component graph on top of an initialized App.
func NewServices(app *ojomine.App) *Services {
	store := ledger.NewStore(app.Db)
	engine := commission.NewEngine(app.Db, store, app.ConfigFn())
	manager := lifecycle.NewManager(app.Db, store, engine, app.Aqc, app.ConfigFn())
	return &Services{
		App:       app,
		Store:     store,
		Engine:    engine,
		Manager:   manager,
		Workflow:  approval.NewWorkflow(app.Db, store, app.ConfigFn()),
		Processor: batch.NewProcessor(app.Db, manager),
	}
}

func getServices(c *gin.Context) *Services {
	return c.MustGet("services").(*Services)
}

// currentUser loads the authenticated account set by the auth middleware.
func currentUser(c *gin.Context, s *Services) (*ojomine.User, bool) {
	userId := c.MustGet("user_id").(uint)
	var user ojomine.User
	res := s.App.Db.Where("id = ? AND status = ?", userId, ojomine.UserActive).First(&user)
	if res.Error != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid jwt"})
		return nil, false
	}
	return &user, true
}

func requireAdmin(c *gin.Context, s *Services) (*ojomine.User, bool) {
	user, ok := currentUser(c, s)
	if !ok {
		return nil, false
	}
	if user.Role != ojomine.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return nil, false
	}
	return user, true
}

// fail maps domain errors onto the small set of user-facing responses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ojomine.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance"})
	case errors.Is(err, ojomine.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
	case errors.Is(err, ojomine.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, gin.H{"error": "already processed"})
	case errors.Is(err, ojomine.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
	case errors.Is(err, ojomine.ErrNotFound), errors.Is(err, ojomine.ErrWalletNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, try again"})
	}
}
