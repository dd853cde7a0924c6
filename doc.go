// Package learngate is a quota and payment gateway for AI-assisted learning
// features.
//
// It is a library first: the Gateway engine is constructed over an injected
// store and exposes the quota ledger, the push-payment state machine and the
// reconciliation poller as plain methods. The api package mounts them on a
// gin router and cmd/learngate runs the whole thing as a server.
//
// # Quick Start
//
//	s := memory.New()
//	gw := learngate.New(s,
//	    learngate.WithLogger(logger),
//	    learngate.WithProvider(mpesaClient),
//	    learngate.WithGenerator(geminiClient),
//	)
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Stop()
//
// # Quotas
//
// Every user has one subscription document, created lazily on first use
// with the free tier and a zeroed counter per feature. Free-tier limits are
// static (see plan.Features). Admission and charging are two steps:
//
//	decision, err := gw.Admit(ctx, userID, plan.FeatureTaskGeneration)
//	if decision.Allowed {
//	    // call the generator
//	    gw.RecordUsage(ctx, userID, plan.FeatureTaskGeneration)
//	}
//
// Generate wraps both steps around a Generator call. A request that fails
// downstream is never charged. Two concurrent requests right at the limit can
// both be admitted; exact enforcement under concurrency is not guaranteed.
//
// Daily windows roll over at midnight UTC. Weekly windows roll over seven
// days after the last reset.
//
// # Payments
//
// A payment is a transaction that starts pending and ends in exactly one of
// completed, failed, cancelled or timeout:
//
//	pending -> completed | failed | cancelled | timeout
//
// Transitions are applied by the store only while the stored status is
// pending, so late or duplicate provider notifications cannot move a settled
// transaction. A duplicate success re-applies the premium upgrade, with the
// next billing date recomputed from now.
//
// Provider notifications are correlated by checkout request id only. No
// signature or source-address check is performed.
//
// # TypeID
//
// Transactions and requests use TypeIDs:
//
//	txn_01h2xcejqtf2nbrexx3vqjhp41  // Transaction ID
//	req_01h455vb4pex5vsknk084sn02q  // Request ID
package learngate
