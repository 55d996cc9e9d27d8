/*
Package ports defines the driven ports (interfaces) of the preflight pipeline.

These interfaces decouple the stages from where artifacts are kept, how concurrent
runs are serialized, and where supporting evidence comes from.

# Key Interfaces

  - ArtifactStore: Persists and loads the JSON artifact of each stage.
  - Locker: Serializes pipeline runs and pack administration (in-process or Redis).
  - EvidenceRetriever: Supplies evidence passages to the compose stage.
*/
package ports
