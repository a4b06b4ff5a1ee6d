package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenCellCore/internal/api/rest"
	"github.com/KevinKickass/OpenCellCore/internal/api/websocket"
	"github.com/KevinKickass/OpenCellCore/internal/config"
	"github.com/KevinKickass/OpenCellCore/internal/interfaces"
	"github.com/KevinKickass/OpenCellCore/internal/plc"
	"github.com/KevinKickass/OpenCellCore/internal/process"
	"github.com/KevinKickass/OpenCellCore/internal/profile"
)

type LifecycleManager struct {
	config       *config.Config
	plcLink      *plc.Link
	orchestrator *process.Orchestrator
	profileName  string
	logger       *zap.Logger

	restServer *rest.Server
	wsHub      *websocket.Hub

	stateMu      sync.RWMutex
	currentState LifecycleState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	link := plc.NewLink(plc.LinkConfig{
		Host:           cfg.Devices.PLC.IP,
		Port:           cfg.Devices.PLC.Port,
		UnitID:         uint8(cfg.PLC.UnitID),
		ConnectTimeout: cfg.PLC.ConnectTimeout,
		RetryInterval:  cfg.PLC.RetryInterval,
		StopTimeout:    cfg.PLC.StopTimeout,
	}, logger)

	loader, err := profile.NewLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	cellProfile, err := loader.Load(cfg.Process.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load cell profile: %w", err)
	}

	settings := cellProfile.FeederSettings()
	if cfg.Process.MarksInterval > 0 {
		settings.MarksInterval = cfg.Process.MarksInterval
	}

	signals := process.NewSignals()
	feeder := process.NewFeeder(link, signals, settings, logger)
	vision := process.NewVision(logger)
	robot := process.NewRobot(logger)

	orchestrator := process.NewOrchestrator(feeder, vision, robot, signals, process.OrchestratorConfig{
		TickInterval: cfg.Process.TickInterval,
		StopTimeout:  cfg.Process.StopTimeout,
	}, logger)

	return &LifecycleManager{
		config:       cfg,
		plcLink:      link,
		orchestrator: orchestrator,
		profileName:  cellProfile.Name,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenCellCore",
		zap.String("profile", lm.profileName))

	lm.setState(StateInitializing)

	// WebSocket hub first, the link and orchestrator feed it
	lm.wsHub = websocket.NewHub(lm.logger)
	go lm.wsHub.Run()

	lm.plcLink.Subscribe(lm.wsHub)
	if err := lm.plcLink.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start PLC link: %w", err))
		return err
	}

	lm.orchestrator.RegisterObserver(lm.wsHub)
	if err := lm.orchestrator.Start(); err != nil {
		lm.setError(fmt.Errorf("failed to start orchestrator: %w", err))
		return err
	}

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("plc_host", lm.plcLink.Host()))

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. REST API first so no new commands arrive mid-stop
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 2. Orchestrator tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.orchestrator.Stop()
	}()

	// 3. PLC health checker
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.plcLink.Stop()
	}()

	// 4. WebSocket hub
	if lm.wsHub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.wsHub.Stop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

// Done is closed once a shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) setState(state LifecycleState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Forcing lifecycle transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("Lifecycle error", zap.Error(err))

	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return interfaces.SystemStatus{
		State:        lm.currentState.String(),
		ProcessAlive: lm.orchestrator.Running(),
		PLCConnected: lm.plcLink.Connected(),
		Profile:      lm.profileName,
	}
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Orchestrator returns the process orchestrator
func (lm *LifecycleManager) Orchestrator() *process.Orchestrator {
	return lm.orchestrator
}

// PLC returns the controller link
func (lm *LifecycleManager) PLC() *plc.Link {
	return lm.plcLink
}
