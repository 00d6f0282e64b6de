package review

// HelpText is the command reference shown by the help command, in Markdown.
const HelpText = `# Review commands

Commands are case-insensitive. Every decision asks for a **y/n** confirmation.

| Command | Effect |
|---|---|
| ` + "`accept`" + ` | accept the current suggestion |
| ` + "`accept all`" + ` | accept this and every remaining cluster as suggested |
| ` + "`accept <flag>`" + ` | auto-accept clusters whose flags are all accepted |
| ` + "`keep <id> [c-<n>\\|s-<n>]`" + ` | use member *id*'s taxonomy, dropping *n* ranks (c) or species words (s) |
| ` + "`remove <id\\|a-b>...`" + ` | drop members and recompute the consensus |
| ` + "`manual <taxonomy>`" + ` | use the given taxonomy verbatim |
| ` + "`exclude`" + ` | drop the cluster from the database |
| ` + "`flags`" + ` | show flag counts for this level |
| ` + "`show`" + ` | show the cluster again |
| ` + "`exit`" + ` | stop; unreviewed clusters are not written |

Member ids are the numbers shown next to each member.
`
