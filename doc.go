// Package arke is a content-addressed, versioned entity registry.
//
// Every entity is identified by a PI (a 26-character ULID) and carries
// an immutable chain of manifest versions in a content store. A small
// mutable tip record maps each PI to the CID of its current manifest;
// the tip's compare-and-swap is the only admission point for writes,
// so concurrent appends to the same entity resolve to exactly one
// winner and the loser learns the tip it must rebase onto.
//
// # Quick Start
//
// In-memory registry (tests, experiments):
//
//	ctx := context.Background()
//	reg, _ := arke.New(blobstore.NewMemoryStore(), kv.NewMemoryStore())
//	defer reg.Close()
//
//	res, _ := reg.Create(ctx, arke.CreateRequest{
//	    Components: map[string]cid.CID{"description": descCID},
//	})
//	fmt.Println(res.PI, res.Ver, res.CID)
//
// Appending a version (optimistic concurrency):
//
//	res2, err := reg.Append(ctx, res.PI, arke.AppendRequest{
//	    ExpectTip: res.CID,
//	    Delta:     manifest.Delta{Components: map[string]cid.CID{"ocr": ocrCID}},
//	})
//	var casErr *arke.CASError
//	if errors.As(err, &casErr) {
//	    // Someone else won; casErr.Actual is the tip to rebase onto.
//	}
//
// Durable deployment:
//
//	blobs := blobstore.NewLocalStore("./data/blobs")
//	kvs := kv.NewLocalStore("./data/kv")
//	reg, _ := arke.New(blobs, kvs)
//
// Cloud deployment uses the s3 (or minio) blobstore backend and the
// DynamoDB kv backend, whose conditional writes provide the
// multi-process compare-and-swap.
//
// # Enumeration
//
// Listing is served by a hybrid index: an append-only log of commit
// events plus periodically rebuilt chunked snapshots. Pages come back
// newest first with an opaque cursor that stays valid across snapshot
// rebuilds:
//
//	page, _ := reg.List(ctx, "", 100, false)
//	for page.NextCursor != "" {
//	    page, _ = reg.List(ctx, page.NextCursor, 100, false)
//	}
//
// # Relationships
//
// Entities form a hierarchy through parent_pi and children_pi. A write
// that changes one side of an edge triggers an asynchronous, best-effort
// append on the other side; the pair is never committed atomically.
package arke
