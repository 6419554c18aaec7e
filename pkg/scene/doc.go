// Package scene defines the scene graph for shard.
// A scene is an immutable DAG of solids, seed sets, and the hull and
// shatter jobs that consume them. Each evaluation of a script produces a
// new scene; nothing mutates it afterwards.
package scene
