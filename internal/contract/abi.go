package contract

// EventPollDeleted is the completion signal for deletePoll; the transaction
// itself returns nothing.
const EventPollDeleted = "PollDeleted"

// PollChainABI is the external call/event interface of the PollChain
// contract. The poll tuple layout must match the on-chain PollView struct
// field for field.
const PollChainABI = `[
  {
    "inputs": [
      {"internalType": "string", "name": "title", "type": "string"},
      {"internalType": "string", "name": "question", "type": "string"},
      {"internalType": "string[]", "name": "optionTexts", "type": "string[]"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"}
    ],
    "name": "createPoll",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "pollId", "type": "uint256"},
      {"internalType": "uint256", "name": "chosenOption", "type": "uint256"}
    ],
    "name": "vote",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "pollId", "type": "uint256"}
    ],
    "name": "deletePoll",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "pollId", "type": "uint256"}
    ],
    "name": "getPoll",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "id", "type": "uint256"},
          {"internalType": "address", "name": "creator", "type": "address"},
          {"internalType": "string", "name": "title", "type": "string"},
          {"internalType": "string", "name": "question", "type": "string"},
          {"internalType": "string[]", "name": "optionTexts", "type": "string[]"},
          {"internalType": "uint256[]", "name": "optionVotes", "type": "uint256[]"},
          {"internalType": "uint256", "name": "voterCount", "type": "uint256"},
          {"internalType": "uint256", "name": "deadline", "type": "uint256"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "bool", "name": "hasAlreadyVoted", "type": "bool"}
        ],
        "internalType": "struct PollChain.PollView",
        "name": "",
        "type": "tuple"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "start", "type": "uint256"},
      {"internalType": "uint256", "name": "limit", "type": "uint256"}
    ],
    "name": "getAllPolls",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "id", "type": "uint256"},
          {"internalType": "address", "name": "creator", "type": "address"},
          {"internalType": "string", "name": "title", "type": "string"},
          {"internalType": "string", "name": "question", "type": "string"},
          {"internalType": "string[]", "name": "optionTexts", "type": "string[]"},
          {"internalType": "uint256[]", "name": "optionVotes", "type": "uint256[]"},
          {"internalType": "uint256", "name": "voterCount", "type": "uint256"},
          {"internalType": "uint256", "name": "deadline", "type": "uint256"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "bool", "name": "hasAlreadyVoted", "type": "bool"}
        ],
        "internalType": "struct PollChain.PollView[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getUserPolls",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "id", "type": "uint256"},
          {"internalType": "address", "name": "creator", "type": "address"},
          {"internalType": "string", "name": "title", "type": "string"},
          {"internalType": "string", "name": "question", "type": "string"},
          {"internalType": "string[]", "name": "optionTexts", "type": "string[]"},
          {"internalType": "uint256[]", "name": "optionVotes", "type": "uint256[]"},
          {"internalType": "uint256", "name": "voterCount", "type": "uint256"},
          {"internalType": "uint256", "name": "deadline", "type": "uint256"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "bool", "name": "hasAlreadyVoted", "type": "bool"}
        ],
        "internalType": "struct PollChain.PollView[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "creator", "type": "address"}
    ],
    "name": "getPollsViaAddress",
    "outputs": [
      {
        "components": [
          {"internalType": "uint256", "name": "id", "type": "uint256"},
          {"internalType": "address", "name": "creator", "type": "address"},
          {"internalType": "string", "name": "title", "type": "string"},
          {"internalType": "string", "name": "question", "type": "string"},
          {"internalType": "string[]", "name": "optionTexts", "type": "string[]"},
          {"internalType": "uint256[]", "name": "optionVotes", "type": "uint256[]"},
          {"internalType": "uint256", "name": "voterCount", "type": "uint256"},
          {"internalType": "uint256", "name": "deadline", "type": "uint256"},
          {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
          {"internalType": "bool", "name": "hasAlreadyVoted", "type": "bool"}
        ],
        "internalType": "struct PollChain.PollView[]",
        "name": "",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getActivePollsCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getAllPollsCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getVotesCasted",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getPollsVotedByUser",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "pollId", "type": "uint256"}
    ],
    "name": "PollDeleted",
    "type": "event"
  }
]`
