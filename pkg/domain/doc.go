/*
Package domain contains the core types of the preflight decision pipeline.

A request payload moves through a fixed sequence of rule-driven stages. Every stage
produces an artifact stamped with the hash of the input payload and the hash of the
rule file that governed it, so a later reader can tell whether a decision can still be
replayed. This package holds those artifacts and the pack types used to version the
rule files. It performs no I/O.

# Key Entities

  - Payload: The caller's request. Never mutated by any stage.
  - ProjectProfile: Classification result and its confidence-based Decision.
  - RegionUpgrade: Which regional overlay rule applied, if any.
  - KGContext: Domain key resolution and the knowledge packs selected for it.
  - PreCheckEvaluation: The gate verdict with reasons and suggested actions.
  - ComposeResult: The terminal artifact, either "ok" or "blocked".
  - Pack, Manifest, PackIdentity: Versioned bundles of rule files.
*/
package domain
