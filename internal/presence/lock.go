package presence

import (
	"hash/fnv"
	"sync"
)

// lockShardCount はMACロックテーブルのシャード数。
const lockShardCount = 64

// macLockTable はMACアドレス単位の状態遷移を直列化するシャード付きロックテーブル。
// 同一MACは常に同一シャードに割り当てられるため、同一デバイスへの
// 検出報告・チェックイン・スイープが並行しても遷移は逐次適用される。
// ゼロ値で使用可能。
type macLockTable struct {
	shards [lockShardCount]sync.Mutex
}

// mutexFor は指定MACを担当するミューテックスを返す。
func (t *macLockTable) mutexFor(mac string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(mac))
	return &t.shards[h.Sum32()%lockShardCount]
}
