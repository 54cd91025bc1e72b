package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/stevemurr/grocery-chat-server/search"
)

// RedisConfig holds connection settings for a Redis server. Search requires
// the RediSearch module.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// RedisStore maps hashes and sorted sets onto native Redis types and
// delegates Search to RediSearch.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		// FT.SEARCH replies are decoded from the RESP2 array form.
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Put(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return r.client.HSet(ctx, key, fieldArgs(fields)...).Err()
}

func (r *RedisStore) GetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *RedisStore) Delete(ctx context.Context, key string) (int64, error) {
	return r.client.Del(ctx, key).Result()
}

// Batch sends ops as one pipeline. Per-op failures, including replies of the
// wrong type, are reported in the matching Result.
func (r *RedisStore) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	if len(ops) == 0 {
		return []Result{}, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]redis.Cmder, len(ops))
	for i, op := range ops {
		switch op.Verb {
		case OpGetAll:
			cmds[i] = pipe.HGetAll(ctx, op.Key)
		case OpPut:
			if len(op.Fields) == 0 {
				continue
			}
			cmds[i] = pipe.HSet(ctx, op.Key, fieldArgs(op.Fields)...)
		case OpDelete:
			cmds[i] = pipe.Del(ctx, op.Key)
		case OpZAdd:
			cmds[i] = pipe.ZAdd(ctx, op.Key, redis.Z{Score: op.Score, Member: op.Member})
		case OpZRem:
			cmds[i] = pipe.ZRem(ctx, op.Key, op.Member)
		}
	}
	_, err := pipe.Exec(ctx)
	if err != nil && isTransportError(err) {
		return nil, err
	}

	results := make([]Result, len(ops))
	for i, op := range ops {
		var res Result
		switch cmd := cmds[i].(type) {
		case nil:
			if op.Verb != OpPut {
				res.Err = errors.New("store: unknown batch verb " + op.Verb.String())
			}
		case *redis.MapStringStringCmd:
			res.Fields, res.Err = cmd.Result()
		case *redis.IntCmd:
			n, err := cmd.Result()
			res.Err = err
			if op.Verb == OpDelete || op.Verb == OpZRem {
				res.Count = n
			}
		default:
			res.Err = cmds[i].Err()
		}
		results[i] = res
	}
	return results, nil
}

func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	match := globEscape(prefix) + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 500).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	// SCAN may return a key more than once.
	sort.Strings(out)
	return dedupSorted(out), nil
}

func (r *RedisStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	return r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisStore) ZRem(ctx context.Context, key, member string) (int64, error) {
	return r.client.ZRem(ctx, key, member).Result()
}

func (r *RedisStore) ZRange(ctx context.Context, key string) ([]Member, error) {
	zs, err := r.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

// ZDrain reads and deletes the set inside MULTI/EXEC.
func (r *RedisStore) ZDrain(ctx context.Context, key string) ([]Member, error) {
	var rng *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.ZRangeWithScores(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toMembers(rng.Val()), nil
}

func (r *RedisStore) CreateIndex(ctx context.Context, ix search.Index) error {
	args := []any{"FT.CREATE", ix.Name, "ON", "HASH", "PREFIX", 1, ix.Prefix, "SCHEMA"}
	args = append(args, ix.Schema()...)
	err := r.client.Do(ctx, args...).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "index already exists") {
		return nil
	}
	return err
}

func (r *RedisStore) Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error) {
	if strings.TrimSpace(expr) == "" {
		expr = "*"
	}
	reply, err := r.client.Do(ctx, "FT.SEARCH", ix.Name, expr, "LIMIT", 0, search.MaxResults).Result()
	if err != nil {
		return nil, err
	}
	return search.ParseReply(reply)
}

func fieldArgs(fields map[string]string) []any {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func toMembers(zs []redis.Z) []Member {
	members := make([]Member, len(zs))
	for i, z := range zs {
		members[i] = Member{Member: fmt.Sprint(z.Member), Score: z.Score}
	}
	// Redis already orders ties by member; sorting keeps the contract
	// independent of the server.
	sortMembers(members)
	return members
}

// globEscape quotes the pattern metacharacters of SCAN MATCH.
func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// isTransportError reports whether err means the pipeline as a whole failed,
// as opposed to one command returning an error reply.
func isTransportError(err error) bool {
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
