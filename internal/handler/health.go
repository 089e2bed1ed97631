package handler

import (
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type HealthHandler struct {
	service string
	engine  string
}

func NewHealthHandler(service, engine string) *HealthHandler {
	return &HealthHandler{service: service, engine: engine}
}

type healthResources struct {
	CPUs              int     `json:"cpus"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
}

type healthResponse struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Engine    string          `json:"engine"`
	Resources healthResources `json:"resources"`
}

// Health handles GET /health. It never touches the queue.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	var res healthResources
	if n, err := cpu.CountsWithContext(c.UserContext(), true); err == nil {
		res.CPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(c.UserContext()); err == nil {
		res.MemoryUsedPercent = math.Round(vm.UsedPercent*10) / 10
	}

	return c.JSON(healthResponse{
		Status:    "healthy",
		Service:   h.service,
		Engine:    h.engine,
		Resources: res,
	})
}
