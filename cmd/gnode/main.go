// Command gnode runs a full node: chain engine, miner, sync manager, and
// peer dispatcher wired together by package manager, driven from CLI flags
// and an optional TOML config file, in the urfave/cli/v2 style.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/example/gnode/chain"
	"github.com/example/gnode/common"
	"github.com/example/gnode/core/types"
	"github.com/example/gnode/internal/gethlog"
	"github.com/example/gnode/manager"
	"github.com/example/gnode/miner"
	"github.com/example/gnode/nodecfg"
	"github.com/example/gnode/p2p"
	"github.com/example/gnode/repository"
	"github.com/example/gnode/syncmgr"
	"github.com/example/gnode/txpool"
)

var log = gethlog.New("gnode")

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML config file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory holding the node's leveldb store",
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "address to accept inbound peer connections on",
	}
	miningFlag = &cli.BoolFlag{
		Name:  "mine",
		Usage: "start mining immediately",
	}
	coinbaseFlag = &cli.StringFlag{
		Name:  "coinbase",
		Usage: "hex address mined blocks credit",
	}
	bootnodeFlag = &cli.StringSliceFlag{
		Name:  "bootnode",
		Usage: "ws(s):// URL of a peer to dial at startup, may be repeated",
	}
)

func main() {
	app := &cli.App{
		Name:  "gnode",
		Usage: "a proof-of-work node",
		Flags: []cli.Flag{configFlag, dataDirFlag, listenAddrFlag, miningFlag, coinbaseFlag, bootnodeFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("gnode: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := nodecfg.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if v := ctx.String(dataDirFlag.Name); v != "" {
		cfg.DataDir = v
	}
	if v := ctx.String(listenAddrFlag.Name); v != "" {
		cfg.ListenAddr = v
	}
	if ctx.Bool(miningFlag.Name) {
		cfg.Mining = true
	}
	if v := ctx.String(coinbaseFlag.Name); v != "" {
		addr, err := common.HexToAddress(v)
		if err != nil {
			return fmt.Errorf("gnode: invalid --coinbase: %w", err)
		}
		cfg.Coinbase = addr
	}
	bootnodes := append(append([]string{}, cfg.Bootnodes...), ctx.StringSlice(bootnodeFlag.Name)...)

	repo, err := repository.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("gnode: opening repository: %w", err)
	}
	defer repo.Close()

	c := chain.Open(repo, nil)
	if err := bootstrapGenesis(c, cfg); err != nil {
		return err
	}

	pool := txpool.New()
	peers := p2p.NewPeerSet()
	sm := syncmgr.New(c, cfg.SyncStallTimeout)
	mgr := manager.New(c, repo, pool, peers, sm, cfg.Coinbase)

	go mgr.Run()
	defer mgr.Stop()

	go func() {
		log.Info("listening for peers", "addr", cfg.ListenAddr)
		if err := p2p.ListenAndServe(cfg.ListenAddr, func(peer *p2p.Peer) {
			peers.Connect(peer)
			go mgr.ServePeer(peer)
		}); err != nil {
			log.Error("p2p listener stopped", "err", err)
		}
	}()

	for _, addr := range bootnodes {
		peer, err := p2p.Dial(addr)
		if err != nil {
			log.Warn("failed to dial bootnode", "addr", addr, "err", err)
			continue
		}
		peers.Connect(peer)
		go mgr.ServePeer(peer)
	}

	if cfg.Mining {
		mgr.StartMining()
	}

	select {}
}

// bootstrapGenesis installs a deterministic genesis block if the repository
// is empty, so a freshly-initialized node always has a canonical height-0
// block to build on.
func bootstrapGenesis(c *chain.Chain, cfg nodecfg.Config) error {
	if _, err := c.GetBestBlock(); err == nil {
		return nil
	}

	genesis := &types.Block{Header: types.BlockHeader{
		Version:     1,
		Height:      0,
		Timestamp:   cfg.GenesisTimestamp,
		Difficulty:  cfg.GenesisDifficulty,
		TrxTrieRoot: types.MerkleRoot(nil),
	}}
	result := miner.Mine(&miner.Handle{}, genesis, 0)
	if !result.Success {
		return fmt.Errorf("gnode: failed to seal genesis block at configured difficulty")
	}
	if outcome := c.ImportBlock(result.Block); outcome != chain.BEST_BLOCK {
		return fmt.Errorf("gnode: failed to install genesis block: %s", outcome)
	}
	return nil
}
