/*
Package packs manages versioned snapshots of the rule and knowledge files the pipeline reads.

A pack is a directory under <root>/packs/<id> holding copies of every file the config
references, plus a manifest of their sizes and hashes. The Manager creates, validates,
activates and rolls back packs. Every config write is atomic and preceded by a
timestamped backup, so the configuration can always be walked back byte for byte.

Mutating operations are serialized through a ports.Locker under the key "pack-admin".
*/
package packs
