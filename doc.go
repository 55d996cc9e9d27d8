/*
Package preflight evaluates document-generation requests through a fixed sequence of
rule-driven stages before any content is produced.

Each stage writes a JSON artifact stamped with the run id, the generation time and the
SHA-256 of the canonical request, so that a decision can be audited and replayed later.

# Stages

	received -> classified -> region_resolved -> domain_resolved -> gated
	gated -> blocked                    (terminal, compose.json carries the reasons)
	gated -> proceeding -> composed     (terminal)

The rules behind every stage live in plain JSON or YAML files referenced by the project
config (kg_config.json). A set of those files can be snapshotted into a pack, validated
against its manifest, activated and rolled back as a unit.

# Usage

	eng, err := preflight.New("./project/kg_config.json")
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Evaluate(ctx, domain.Payload{
		"topic":   "住宅楼精装修施工方案",
		"outline": []any{"工程概况", "施工方法"},
	})
	if err != nil {
		log.Fatal(err) // Configuration or persistence problem
	}
	if res.Blocked() {
		fmt.Println(res.Gate.HumanReadable)
	}

	report, _ := eng.Audit(ctx)
	fmt.Println(report.Replay.Replayable)

# Packs

	man, _ := eng.Packs().Create(ctx, packs.CreateOptions{ID: "2024-06"})
	_, err = eng.Activate(ctx, man.PackID, true) // Restores the config if the smoke run fails
	_, err = eng.Rollback(ctx, "", false)

See cmd/preflight for the command line, pkg/adapters/http for the HTTP surface and
pkg/adapters/mcp for the MCP tools.
*/
package preflight
