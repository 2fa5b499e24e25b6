// Package shard buckets entity ids and wall-clock windows into 64 stable
// shards so periodic sweeps can spread work across ticks.
package shard

import (
	"hash/crc32"
	"time"
)

// Count is the number of shards.
const Count = 64

// Of returns the shard for an entity id: CRC-32 (IEEE) of the id modulo 64.
// The checksum is fixed so shard keys stay valid across deployments.
func Of(id string) int {
	return int(crc32.ChecksumIEEE([]byte(id)) % Count)
}

// HourShard rotates once per UTC hour, cycling every 64 hours.
func HourShard(now time.Time) int {
	t := now.UTC()
	return ((t.YearDay()-1)*24 + t.Hour()) % Count
}

// FiveMinuteShard rotates every five minutes, cycling every 5h20m.
func FiveMinuteShard(now time.Time) int {
	t := now.UTC()
	return ((t.Hour()*60 + t.Minute()) / 5) % Count
}

// Opposite returns the shard half a cycle away from s.
func Opposite(s int) int {
	return (s + Count/2) % Count
}

// Window is the pair of shards processed by one tick.
type Window struct {
	Primary   int
	Secondary int
}

// Contains reports whether s falls in the window.
func (w Window) Contains(s int) bool {
	return s == w.Primary || s == w.Secondary
}

// Slice returns the window's shards for use as a query argument.
func (w Window) Slice() []int32 {
	return []int32{int32(w.Primary), int32(w.Secondary)}
}

// HourWindow returns the hourly shard and its opposite.
func HourWindow(now time.Time) Window {
	s := HourShard(now)
	return Window{Primary: s, Secondary: Opposite(s)}
}

// FiveMinuteWindow returns the five-minute shard and its opposite.
func FiveMinuteWindow(now time.Time) Window {
	s := FiveMinuteShard(now)
	return Window{Primary: s, Secondary: Opposite(s)}
}
