package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
}

// Qdrant keeps every namespace in one collection and separates them with a
// keyword payload field. Point ids are derived from namespace and memory id
// because Qdrant only accepts UUIDs or integers.
type Qdrant struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
}

const (
	payloadMemoryID  = "memory_id"
	payloadNamespace = "namespace"
)

// NewQdrant dials Qdrant over gRPC and creates the collection if needed.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*Qdrant, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	q := &Qdrant{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.Collection,
	}
	if err := q.ensureCollection(ctx, uint64(cfg.Dimension)); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimension uint64) error {
	_, err := q.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: q.collection})
	if err == nil {
		return nil
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

func pointID(namespace, id string) *pb.PointId {
	return pb.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(namespace+"/"+id)).String())
}

func namespaceFilter(namespace string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{pb.NewMatchKeyword(payloadNamespace, namespace)}}
}

func toPayload(metadata map[string]any) (map[string]*pb.Value, error) {
	in := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if list, ok := v.([]string); ok {
			items := make([]any, len(list))
			for i, s := range list {
				items[i] = s
			}
			v = items
		}
		in[k] = v
	}
	return pb.TryValueMap(in)
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			items = append(items, fromValue(item))
		}
		return items
	case *pb.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, item := range kind.StructValue.GetFields() {
			fields[k] = fromValue(item)
		}
		return fields
	default:
		return nil
	}
}

func (q *Qdrant) Upsert(ctx context.Context, namespace string, points []Point) error {
	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := toPayload(p.Metadata)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", p.ID, err)
		}
		payload[payloadMemoryID] = pb.NewValueString(p.ID)
		payload[payloadNamespace] = pb.NewValueString(namespace)
		structs = append(structs, &pb.PointStruct{
			Id:      pointID(namespace, p.ID),
			Vectors: pb.NewVectorsDense(p.Vector),
			Payload: payload,
		})
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         structs,
	})
	return err
}

func (q *Qdrant) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         namespaceFilter(namespace),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.collection, err)
	}

	out := make([]Match, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		meta := make(map[string]any, len(r.GetPayload()))
		for k, v := range r.GetPayload() {
			meta[k] = fromValue(v)
		}
		id, _ := meta[payloadMemoryID].(string)
		delete(meta, payloadMemoryID)
		delete(meta, payloadNamespace)
		if id == "" {
			continue
		}
		out = append(out, Match{ID: id, Score: float64(r.GetScore()), Metadata: meta})
	}
	return out, nil
}

func (q *Qdrant) UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error {
	payload, err := toPayload(fields)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", id, err)
	}
	wait := true
	_, err = q.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Payload:        payload,
		PointsSelector: pb.NewPointsSelector(pointID(namespace, id)),
	})
	return err
}

func (q *Qdrant) Delete(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(namespace, id)
	}
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         pb.NewPointsSelector(pids...),
	})
	return err
}

func (q *Qdrant) DeleteNamespace(ctx context.Context, namespace string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         pb.NewPointsSelectorFilter(namespaceFilter(namespace)),
	})
	return err
}

// Close tears down the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}
