package dig_container_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dig_container "github.com/sautiplus/backoffice/apps/api/di/dig"
	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/sacco"
)

func TestNew_InMemory(t *testing.T) {
	t.Setenv("ENV", "TEST")
	t.Setenv("TEST_DATABASE_ENGINE", "inmem")
	t.Setenv("TEST_KAFKA_BROKERS", "")
	t.Setenv("TEST_REDIS_URL", "")

	c := dig_container.New(false)

	err := c.Invoke(func(conf *core.Config, server *echoapi.Server, saccoSvc *sacco.Service, closers dig_container.CloserParam) {
		assert.Equal(t, "inmem", conf.Database.Engine)
		assert.NotNil(t, saccoSvc)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		assert.NoError(t, closers.DB())
		assert.NoError(t, closers.Events())
	})
	require.NoError(t, err)
}
