package crypto

// wordList is the fixed pool for passphrase generation: 256 short, common,
// unambiguous English words. The size is part of the passphrase entropy
// estimate (log2(256) = 8 bits per word) and must not change silently.
var wordList = []string{
	"acid", "acorn", "actor", "alarm", "album", "alien", "alley", "amber",
	"angle", "ankle", "apple", "apron", "arrow", "atlas", "attic", "axis",
	"bacon", "badge", "bagel", "banjo", "barn", "basil", "beach", "beam",
	"bean", "bear", "bell", "bench", "berry", "bike", "birch", "bison",
	"blade", "blaze", "bloom", "board", "boat", "bolt", "book", "boot",
	"brick", "bridge", "brook", "broom", "brush", "bugle", "bunny", "cabin",
	"cable", "cactus", "camel", "canal", "candy", "canoe", "cargo", "carrot",
	"castle", "cedar", "chalk", "chart", "cheese", "cherry", "chess", "chime",
	"cider", "cliff", "clock", "cloud", "clover", "cobra", "cocoa", "comet",
	"coral", "cotton", "crane", "crate", "creek", "crown", "cube", "daisy",
	"dance", "deer", "delta", "denim", "dime", "dingo", "dome", "donkey",
	"dove", "dragon", "drum", "dune", "eagle", "easel", "echo", "elbow",
	"elder", "elm", "ember", "engine", "fable", "falcon", "fence", "fern",
	"ferry", "fiddle", "field", "flag", "flame", "flask", "fleet", "flint",
	"flute", "foam", "forge", "fox", "frost", "fudge", "galaxy", "garden",
	"gate", "gecko", "gem", "giant", "ginger", "glacier", "glade", "globe",
	"glove", "goose", "gourd", "grape", "grove", "guitar", "harbor", "harp",
	"hazel", "heron", "hill", "hinge", "honey", "hoof", "horn", "husk",
	"igloo", "inlet", "iris", "iron", "island", "ivory", "jade", "jaguar",
	"jelly", "jewel", "jigsaw", "jungle", "kayak", "kettle", "kiosk", "kite",
	"kiwi", "knight", "koala", "lagoon", "lake", "lantern", "lapel", "larch",
	"laser", "latch", "leaf", "ledge", "lemon", "lilac", "lily", "lime",
	"lion", "lizard", "llama", "lodge", "lotus", "lunar", "lynx", "magnet",
	"mango", "maple", "marble", "meadow", "melon", "mesa", "minnow", "mint",
	"mirror", "moose", "moss", "moth", "mule", "mural", "nectar", "nest",
	"newt", "noble", "north", "nugget", "oak", "oasis", "ocean", "olive",
	"onyx", "opal", "orbit", "orchid", "otter", "owl", "oyster", "paddle",
	"pagoda", "palm", "panda", "peach", "pearl", "pebble", "pecan", "penny",
	"piano", "pine", "pixel", "plume", "pond", "poppy", "prism", "pylon",
	"quail", "quartz", "quill", "rabbit", "raft", "raven", "reef", "ridge",
	"river", "robin", "rocket", "rose", "saddle", "sage", "sail", "salmon",
	"sand", "satin", "sierra", "slate", "spruce", "stone", "tiger", "willow",
}
