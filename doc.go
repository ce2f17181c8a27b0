// Package quadrant distributes one large Monte Carlo counting workload
// across a fixed set of cooperating ranks, fans each rank's share out to a
// bounded local worker pool, and reduces the partial tallies into a single
// estimate on the root rank.
//
// Alongside the computation, exactly one rank per physical host is elected
// leader and supervises a telemetry-agent subprocess that samples system
// resource counters for the duration of the run.
//
// # Quick Start
//
// Single-process run with an in-process communicator group:
//
//	cfg := quadrant.DefaultConfig()
//	cfg.RunID = "demo"
//	cfg.TotalTrials = 10_000_000
//
//	comms, _ := comm.NewLocalGroup(4)
//	var wg sync.WaitGroup
//	for _, c := range comms {
//	    wg.Add(1)
//	    go func() {
//	        defer wg.Done()
//	        runner, _ := quadrant.New(cfg, c)
//	        report, _ := runner.Run(ctx)
//	        if report != nil {
//	            fmt.Print(report)
//	        }
//	    }()
//	}
//	wg.Wait()
//
// Multi-process runs swap in the NATS-backed communicator, one rank per
// process:
//
//	nc, _ := nats.Connect(natsURL)
//	c, _ := comm.NewNATS(nc, cfg.RunID, rank, worldSize)
//	runner, _ := quadrant.New(cfg, c)
//
// # Architecture
//
// Every rank executes the same sequence of collective calls:
//
//	barrier → leader election → barrier → compute → barrier → reduce
//
// The split of trials across ranks is a pure function of (totalTrials,
// worldSize), so a rank computes its own partition locally with no
// coordination beyond the collectives above. Ranks assigned zero trials
// still participate in every collective with a zero tally; skipping one
// would deadlock the group.
//
// On each host, the minimum rank becomes leader and owns the telemetry
// agent's lifecycle: launched into its own process group, interrupted at
// run exit, and killed after a bounded timeout if it does not cooperate.
//
// See the examples/ directory for complete working examples.
package quadrant
