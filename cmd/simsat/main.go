// Command simsat is the host-simulation entry point: it wires the
// allocator, every transport adapter, the registration and service
// managers, the loop manager, and the full housekeeping/domain task set
// into one running node, driven by an explicit tick loop rather than a
// hardware timer interrupt (spec.md's package-layout table: "host-
// simulation entry point wiring every component together").
package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cubesat-core/flightsw/attitude"
	"github.com/cubesat-core/flightsw/blobstore"
	"github.com/cubesat-core/flightsw/cmn"
	"github.com/cubesat-core/flightsw/cmn/mono"
	"github.com/cubesat-core/flightsw/cmn/nlog"
	"github.com/cubesat-core/flightsw/cyphal"
	"github.com/cubesat-core/flightsw/cyphal/can"
	"github.com/cubesat-core/flightsw/cyphal/loopback"
	"github.com/cubesat-core/flightsw/cyphal/serial"
	"github.com/cubesat-core/flightsw/cyphal/udp"
	"github.com/cubesat-core/flightsw/loopmgr"
	"github.com/cubesat-core/flightsw/memsys"
	"github.com/cubesat-core/flightsw/metrics"
	"github.com/cubesat-core/flightsw/sched"
	"github.com/cubesat-core/flightsw/sgp4"
	"github.com/cubesat-core/flightsw/tasks"
	"github.com/cubesat-core/flightsw/timemodel"
	"github.com/cubesat-core/flightsw/xreg"
)

// ledPin is the simulation's stand-in GPIO, logging every toggle instead
// of driving a physical pin.
type ledPin struct{ on bool }

func (p *ledPin) Toggle() {
	p.on = !p.on
	nlog.Debugf("simsat: LED -> %v", p.on)
}

func main() {
	configPath := flag.String("config", "", "path to a JSON boot configuration (defaults built in if omitted)")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve /metrics on")
	tickMs := flag.Uint("tick-ms", 10, "simulated scheduler tick period in milliseconds")
	runFor := flag.Duration("run-for", 0, "wall-clock duration to run before exiting (0 = forever)")
	flag.Parse()

	cfg := cmn.DefaultConfig()
	if *configPath != "" {
		loaded, err := cmn.LoadConfig(*configPath)
		if err != nil {
			nlog.Criticalf("simsat: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	alloc := memsys.New(cfg.AllocatorCapacityBytes)
	reg := xreg.New()
	svc := sched.NewServiceManager(reg)
	clock := mono.NewClock(0)
	tm := timemodel.NewClock(clock.Now(), cfg.RTCEpochMs)

	var adapters []cyphal.CommonAdapter
	loopMgr := loopmgr.New(svc)

	if cfg.Loopback.Enabled {
		a := loopback.New(alloc, cyphal.NodeID(cfg.Loopback.NodeID))
		adapters = append(adapters, a)
		loopMgr.AddLoopback("loopback", a)
	}
	if cfg.CAN.Enabled {
		a := can.New(alloc, cyphal.NodeID(cfg.CAN.NodeID))
		adapters = append(adapters, a)
		loopMgr.AddCAN("can", a)
	}
	if cfg.Serial.Enabled {
		a := serial.New(alloc, cyphal.NodeID(cfg.Serial.NodeID))
		adapters = append(adapters, a)
		loopMgr.AddSerial("serial", a)
	}
	if cfg.UDP.Enabled {
		a := udp.New(alloc, cyphal.NodeID(cfg.UDP.NodeID))
		adapters = append(adapters, a)
		loopMgr.AddUDP("udp", a)
	}
	if len(adapters) == 0 {
		nlog.Criticalf("simsat: no transport adapters enabled in configuration")
		os.Exit(1)
	}

	layout := blobstore.Layout{
		{Name: "blob1", Offset: 0, Size: 10},
	}
	store := blobstore.New(layout, blobstore.NewByteArrayBackend(1024))

	heartbeatTx := tasks.NewSendHeartBeat(cfg.Heartbeat.IntervalMs, cfg.Heartbeat.ShiftMs, adapters)
	heartbeatRx := tasks.NewProcessHeartBeat(cfg.ProcessHeartbeat.IntervalMs, cfg.ProcessHeartbeat.ShiftMs, cfg.ProcessHeartbeat.InboxCapacity)
	portListTx := tasks.NewSendNodePortList(reg, cfg.PortList.IntervalMs, cfg.PortList.ShiftMs, adapters)
	portListRx := tasks.NewSubscribeNodePortList(cfg.SubscribePortList.IntervalMs, cfg.SubscribePortList.ShiftMs, cfg.SubscribePortList.InboxCapacity, adapters)
	timeSyncTx := tasks.NewSendTimeSynchronization(tm, cfg.TimeSync.IntervalMs, cfg.TimeSync.ShiftMs, adapters)
	timeSyncRx := tasks.NewProcessTimeSynchronization(tm, cfg.ProcessTimeSync.IntervalMs, cfg.ProcessTimeSync.ShiftMs, cfg.ProcessTimeSync.InboxCapacity)
	getInfoClient := tasks.NewRequestGetInfo(cyphal.NodeID(cfg.GetInfoServerNodeID), cfg.GetInfoClient.IntervalMs, cfg.GetInfoClient.ShiftMs, cfg.GetInfoClient.InboxCapacity, adapters)
	getInfoServer := tasks.NewRespondGetInfo(tasks.NodeInfo{
		ProtocolVersionMajor: 1,
		HardwareVersionMajor: 1,
		SoftwareVersionMajor: 1,
		Name:                 "simsat",
	}, cfg.GetInfoServer.IntervalMs, cfg.GetInfoServer.ShiftMs, cfg.GetInfoServer.InboxCapacity, adapters)
	blink := tasks.NewBlinkLED(&ledPin{}, cfg.BlinkLED.IntervalMs, cfg.BlinkLED.ShiftMs)
	checkMem := tasks.NewCheckMemory(alloc, cfg.CheckMemory.IntervalMs, cfg.CheckMemory.ShiftMs)
	registerAccess := tasks.NewRegisterAccess(store, cfg.RegisterAccess.IntervalMs, cfg.RegisterAccess.ShiftMs, cfg.RegisterAccess.InboxCapacity, adapters)

	bdot := attitude.NewDetumbler(attitude.DetumblerConfig{
		Gain:             cfg.Attitude.BDotGain,
		SaturationDipole: attitude.Vec3{cfg.Attitude.SaturationDipole[0], cfg.Attitude.SaturationDipole[1], cfg.Attitude.SaturationDipole[2]},
	})
	driver := attitude.NewDriver(attitude.DriverConfig{
		SaturationDipole: attitude.Vec3{cfg.Attitude.SaturationDipole[0], cfg.Attitude.SaturationDipole[1], cfg.Attitude.SaturationDipole[2]},
		DutyScale:        attitude.Vec3{cfg.Attitude.DutyScale[0], cfg.Attitude.DutyScale[1], cfg.Attitude.DutyScale[2]},
	})
	detumblerTask := attitude.NewDetumblerTask(bdot, driver, cfg.Detumbler.IntervalMs, cfg.Detumbler.ShiftMs, cfg.Detumbler.InboxCapacity)

	pointer := attitude.NewLVLHPointer(attitude.LVLHConfig{
		Kp:               attitude.Vec3{cfg.Attitude.LVLHKp[0], cfg.Attitude.LVLHKp[1], cfg.Attitude.LVLHKp[2]},
		Kd:               attitude.Vec3{cfg.Attitude.LVLHKd[0], cfg.Attitude.LVLHKd[1], cfg.Attitude.LVLHKd[2]},
		SaturationDipole: attitude.Vec3{cfg.Attitude.SaturationDipole[0], cfg.Attitude.SaturationDipole[1], cfg.Attitude.SaturationDipole[2]},
	})
	magnetorquerTask := attitude.NewMagnetorquerTask(pointer, driver, cfg.Magnetorquer.IntervalMs, cfg.Magnetorquer.ShiftMs, cfg.Magnetorquer.InboxCapacity)

	propagator := sgp4.NewTask(tm, cfg.SGP4.IntervalMs, cfg.SGP4.ShiftMs, cfg.SGP4.InboxCapacity, adapters)

	allTasks := []sched.Task{
		heartbeatTx, heartbeatRx,
		portListTx, portListRx,
		timeSyncTx, timeSyncRx,
		getInfoClient, getInfoServer,
		blink, checkMem, registerAccess,
		detumblerTask, magnetorquerTask,
		propagator,
	}
	for _, t := range allTasks {
		svc.AddTask(t) // AddTask registers t with reg and appends it to the tick list
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.NewCollector(alloc, reg))
	promReg.MustRegister(metrics.NewTransportCollector(loopMgr))
	http.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			nlog.Errorf("simsat: metrics server stopped: %v", err)
		}
	}()

	nlog.Infof("simsat: booted, node_id=%d, %d transport(s), serving metrics on %s", cfg.NodeID, len(adapters), *metricsAddr)

	ticker := time.NewTicker(time.Duration(*tickMs) * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Time{}
	if *runFor > 0 {
		deadline = time.Now().Add(*runFor)
	}
	for range ticker.C {
		now := clock.Advance(uint32(*tickMs))
		if a, ok := findLoopback(adapters); ok {
			loopMgr.DrainLoopback(a)
		}
		svc.HandleServices(now)
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
	}
}

func findLoopback(adapters []cyphal.CommonAdapter) (*loopback.Adapter, bool) {
	for _, a := range adapters {
		if lb, ok := a.(*loopback.Adapter); ok {
			return lb, true
		}
	}
	return nil, false
}
